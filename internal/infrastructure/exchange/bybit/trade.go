package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

const recvWindow = "5000"

// retCodeLeverageNotModified: set-leverage with the current value; harmless.
const retCodeLeverageNotModified = 110043

type tradeClient struct {
	http    *exchange.HTTPClient
	cred    model.Credential
	baseURL string
}

func newTradeClient(http *exchange.HTTPClient, cred model.Credential) *tradeClient {
	base := mainnetBaseURL
	if cred.Testnet {
		base = testnetBaseURL
	}
	return &tradeClient{http: http, cred: cred, baseURL: base}
}

type orderResult struct {
	OrderID string `json:"orderId"`
}

// signedPost signs timestamp+apiKey+recvWindow+body with HMAC-SHA256.
func (c *tradeClient) signedPost(ctx context.Context, path string, payload any) (*envelope[orderResult], error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "encode payload")
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.cred.APISecret))
	mac.Write([]byte(timestamp + c.cred.APIKey + recvWindow + string(body)))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BAPI-API-KEY", c.cred.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)

	raw, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	var resp envelope[orderResult]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "decode response")
	}
	return &resp, nil
}

func (c *tradeClient) placeOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	side := "Buy"
	if req.Side == model.Sell {
		side = "Sell"
	}
	payload := map[string]any{
		"category":  "linear",
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": "Market",
		"qty":       exchange.FormatQty(req.Quantity),
	}
	if req.ReduceOnly {
		payload["reduceOnly"] = true
	}

	resp, err := c.signedPost(ctx, "/v5/order/create", payload)
	if err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindOf(err), err, "bybit place order %s", req.Symbol)
	}
	if resp.RetCode != 0 {
		return port.OrderResult{}, fault.New(fault.KindInternal, "bybit order rejected (%d): %s", resp.RetCode, resp.RetMsg)
	}

	log.Info().
		Str("exchange", "bybit").
		Str("symbol", req.Symbol).
		Str("side", strings.ToLower(side)).
		Float64("quantity", req.Quantity).
		Str("orderId", resp.Result.OrderID).
		Msg("order placed")

	return port.OrderResult{ExchangeOrderID: resp.Result.OrderID}, nil
}

func (c *tradeClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	payload := map[string]any{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	}
	resp, err := c.signedPost(ctx, "/v5/order/cancel", payload)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "bybit cancel order %s", orderID)
	}
	if resp.RetCode != 0 {
		return fault.New(fault.KindInternal, "bybit cancel rejected (%d): %s", resp.RetCode, resp.RetMsg)
	}
	log.Info().Str("exchange", "bybit").Str("symbol", symbol).Str("orderId", orderID).Msg("order cancelled")
	return nil
}

func (c *tradeClient) setLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := exchange.FormatQty(leverage)
	payload := map[string]any{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}
	resp, err := c.signedPost(ctx, "/v5/position/set-leverage", payload)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "bybit set leverage %s", symbol)
	}
	if resp.RetCode != 0 && resp.RetCode != retCodeLeverageNotModified {
		return fault.New(fault.KindInternal, "bybit set leverage rejected (%d): %s", resp.RetCode, resp.RetMsg)
	}
	return nil
}
