package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

// codePositionSideMismatch comes back when the account's dual-side position
// mode disagrees with the positionSide we sent.
const codePositionSideMismatch = -4061

// tradeClient performs signed USDT-M calls for one credential. Portfolio
// margin accounts route through papi with the um/ prefix.
type tradeClient struct {
	http      *exchange.HTTPClient
	cred      model.Credential
	baseURL   string
	orderPath string
	levPath   string
}

func newTradeClient(http *exchange.HTTPClient, cred model.Credential) *tradeClient {
	c := &tradeClient{http: http, cred: cred}
	switch {
	case cred.PortfolioMargin:
		c.baseURL = papiBaseURL
		c.orderPath = "/papi/v1/um/order"
		c.levPath = "/papi/v1/um/leverage"
	case cred.Testnet:
		c.baseURL = testnetBaseURL
		c.orderPath = "/fapi/v1/order"
		c.levPath = "/fapi/v1/leverage"
	default:
		c.baseURL = mainnetBaseURL
		c.orderPath = "/fapi/v1/order"
		c.levPath = "/fapi/v1/leverage"
	}
	return c
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
}

func (c *tradeClient) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if params.Get("recvWindow") == "" {
		params.Set("recvWindow", "5000")
	}

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.cred.APISecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))
	endpoint := strings.TrimRight(c.baseURL, "/") + path + "?" + query + "&signature=" + signature

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "build request")
	}
	req.Header.Set("X-MBX-APIKEY", c.cred.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.http.Do(req)
}

func errorCode(body []byte) int {
	var e apiError
	if json.Unmarshal(body, &e) != nil {
		return 0
	}
	return e.Code
}

func (c *tradeClient) placeOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	params := c.orderParams(req, req.PositionSide)
	body, err := c.signedRequest(ctx, http.MethodPost, c.orderPath, params)
	note := ""
	if err != nil && errorCode(body) == codePositionSideMismatch {
		// One-way position mode account; retry once with the neutral side.
		log.Warn().
			Str("exchange", "binance").
			Str("symbol", req.Symbol).
			Str("positionSide", req.PositionSide).
			Msg("position side mismatch, retrying with BOTH")
		body, err = c.signedRequest(ctx, http.MethodPost, c.orderPath, c.orderParams(req, "BOTH"))
		note = "retried with positionSide=BOTH"
	}
	if err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindOf(err), err, "binance place order %s", req.Symbol)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindInternal, err, "binance order response")
	}
	if resp.OrderID == 0 {
		return port.OrderResult{}, fault.New(fault.KindInternal, "binance order rejected: %s", string(body))
	}

	log.Info().
		Str("exchange", "binance").
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("quantity", req.Quantity).
		Int64("orderID", resp.OrderID).
		Str("status", resp.Status).
		Msg("order placed")

	return port.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		FilledQty:       exchange.ParseFloat(resp.ExecutedQty),
		AvgPrice:        exchange.ParseFloat(resp.AvgPrice),
		Note:            note,
	}, nil
}

func (c *tradeClient) orderParams(req port.OrderRequest, positionSide string) url.Values {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", "MARKET")
	params.Set("quantity", exchange.FormatQty(req.Quantity))
	if positionSide != "" {
		params.Set("positionSide", strings.ToUpper(positionSide))
	}
	// Dual-side accounts reject reduceOnly; the positionSide already implies
	// the closing direction there.
	if req.ReduceOnly && strings.EqualFold(positionSide, "BOTH") {
		params.Set("reduceOnly", "true")
	}
	return params
}

func (c *tradeClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	if _, err := c.signedRequest(ctx, http.MethodDelete, c.orderPath, params); err != nil {
		return fault.Wrap(fault.KindOf(err), err, "binance cancel order %s", orderID)
	}
	log.Info().Str("exchange", "binance").Str("symbol", symbol).Str("orderId", orderID).Msg("order cancelled")
	return nil
}

func (c *tradeClient) setLeverage(ctx context.Context, symbol string, leverage float64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(int(leverage)))
	if _, err := c.signedRequest(ctx, http.MethodPost, c.levPath, params); err != nil {
		return fault.Wrap(fault.KindOf(err), err, "binance set leverage %s", symbol)
	}
	return nil
}
