package bitget

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

type tradeClient struct {
	http *exchange.HTTPClient
	cred model.Credential
}

func newTradeClient(http *exchange.HTTPClient, cred model.Credential) *tradeClient {
	return &tradeClient{http: http, cred: cred}
}

type orderData struct {
	OrderID   string `json:"orderId"`
	ClientOID string `json:"clientOid"`
}

// signedPost signs timestamp+method+path+body, base64 encoded.
func (c *tradeClient) signedPost(ctx context.Context, path string, payload any) (*envelope[orderData], error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "encode payload")
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.cred.APISecret))
	mac.Write([]byte(timestamp + http.MethodPost + path + string(body)))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.cred.APIKey)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", c.cred.Passphrase)
	if c.cred.Testnet {
		req.Header.Set("paptrading", "1")
	}

	raw, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	var resp envelope[orderData]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "decode response")
	}
	return &resp, nil
}

func (c *tradeClient) placeOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	tradeSide := "open"
	if req.ReduceOnly {
		tradeSide = "close"
	}
	payload := map[string]any{
		"symbol":      req.Symbol,
		"productType": productType,
		"marginMode":  "crossed",
		"marginCoin":  "USDT",
		"size":        exchange.FormatQty(req.Quantity),
		"side":        strings.ToLower(string(req.Side)),
		"tradeSide":   tradeSide,
		"orderType":   "market",
	}

	resp, err := c.signedPost(ctx, "/api/v2/mix/order/place-order", payload)
	if err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindOf(err), err, "bitget place order %s", req.Symbol)
	}
	if !ok(resp.Code) {
		return port.OrderResult{}, fault.New(fault.KindInternal, "bitget order rejected (%s): %s", resp.Code, resp.Msg)
	}

	log.Info().
		Str("exchange", "bitget").
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("tradeSide", tradeSide).
		Float64("quantity", req.Quantity).
		Str("orderId", resp.Data.OrderID).
		Msg("order placed")

	return port.OrderResult{ExchangeOrderID: resp.Data.OrderID}, nil
}

func (c *tradeClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	payload := map[string]any{
		"symbol":      symbol,
		"productType": productType,
		"orderId":     orderID,
	}
	resp, err := c.signedPost(ctx, "/api/v2/mix/order/cancel-order", payload)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "bitget cancel order %s", orderID)
	}
	if !ok(resp.Code) {
		return fault.New(fault.KindInternal, "bitget cancel rejected (%s): %s", resp.Code, resp.Msg)
	}
	log.Info().Str("exchange", "bitget").Str("symbol", symbol).Str("orderId", orderID).Msg("order cancelled")
	return nil
}

func (c *tradeClient) setLeverage(ctx context.Context, symbol string, leverage float64) error {
	payload := map[string]any{
		"symbol":      symbol,
		"productType": productType,
		"marginCoin":  "USDT",
		"leverage":    exchange.FormatQty(leverage),
	}
	resp, err := c.signedPost(ctx, "/api/v2/mix/account/set-leverage", payload)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "bitget set leverage %s", symbol)
	}
	if !ok(resp.Code) {
		return fault.New(fault.KindInternal, "bitget set leverage rejected (%s): %s", resp.Code, resp.Msg)
	}
	return nil
}
