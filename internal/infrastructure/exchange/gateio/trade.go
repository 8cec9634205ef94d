package gateio

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

const apiPrefix = "/api/v4"

type tradeClient struct {
	http *exchange.HTTPClient
	cred model.Credential
}

func newTradeClient(http *exchange.HTTPClient, cred model.Credential) *tradeClient {
	return &tradeClient{http: http, cred: cred}
}

type orderResponse struct {
	ID    int64  `json:"id"`
	Size  int64  `json:"size"`
	Left  int64  `json:"left"`
	Price string `json:"fill_price"`
}

// signedRequest signs method\npath\nquery\nsha512(body)\ntimestamp with
// HMAC-SHA512 per the gate v4 scheme.
func (c *tradeClient) signedRequest(ctx context.Context, method, path, query string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "encode payload")
		}
	}

	bodyHash := sha512.Sum512(body)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	payloadString := method + "\n" + apiPrefix + path + "\n" + query + "\n" +
		hex.EncodeToString(bodyHash[:]) + "\n" + timestamp

	mac := hmac.New(sha512.New, []byte(c.cred.APISecret))
	mac.Write([]byte(payloadString))
	signature := hex.EncodeToString(mac.Sum(nil))

	endpoint := baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("KEY", c.cred.APIKey)
	req.Header.Set("Timestamp", timestamp)
	req.Header.Set("SIGN", signature)

	return c.http.Do(req)
}

func (c *tradeClient) placeOrder(ctx context.Context, req port.OrderRequest, contracts int64) (port.OrderResult, error) {
	payload := map[string]any{
		"contract": contractFor(req.Symbol),
		"size":     contracts,
		"price":    "0",
		"tif":      "ioc",
	}
	if req.ReduceOnly {
		payload["reduce_only"] = true
	}

	raw, err := c.signedRequest(ctx, http.MethodPost, "/futures/usdt/orders", "", payload)
	if err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindOf(err), err, "gateio place order %s", req.Symbol)
	}
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindInternal, err, "gateio order response")
	}
	if resp.ID == 0 {
		return port.OrderResult{}, fault.New(fault.KindInternal, "gateio order rejected: %s", string(raw))
	}

	log.Info().
		Str("exchange", "gateio").
		Str("contract", contractFor(req.Symbol)).
		Int64("contracts", contracts).
		Int64("orderId", resp.ID).
		Msg("order placed")

	return port.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.ID, 10),
		AvgPrice:        exchange.ParseFloat(resp.Price),
	}, nil
}

func (c *tradeClient) cancelOrder(ctx context.Context, orderID string) error {
	if _, err := c.signedRequest(ctx, http.MethodDelete, "/futures/usdt/orders/"+orderID, "", nil); err != nil {
		return fault.Wrap(fault.KindOf(err), err, "gateio cancel order %s", orderID)
	}
	log.Info().Str("exchange", "gateio").Str("orderId", orderID).Msg("order cancelled")
	return nil
}

func (c *tradeClient) setLeverage(ctx context.Context, contract string, leverage float64) error {
	query := "leverage=" + exchange.FormatQty(leverage)
	path := "/futures/usdt/positions/" + contract + "/leverage"
	if _, err := c.signedRequest(ctx, http.MethodPost, path, query, nil); err != nil {
		return fault.Wrap(fault.KindOf(err), err, "gateio set leverage %s", contract)
	}
	return nil
}
