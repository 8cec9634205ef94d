package okx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

// codePositionModeMismatch: the account runs net mode while we sent a
// long/short posSide.
const codePositionModeMismatch = "51010"

type tradeClient struct {
	http *exchange.HTTPClient
	cred model.Credential
}

func newTradeClient(http *exchange.HTTPClient, cred model.Credential) *tradeClient {
	return &tradeClient{http: http, cred: cred}
}

type orderData struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type orderEnvelope struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data []orderData `json:"data"`
}

// signedRequest signs timestamp+method+path+body per the OK-ACCESS scheme.
func (c *tradeClient) signedRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "encode payload")
		}
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(c.cred.APISecret))
	mac.Write([]byte(timestamp + method + path + string(body)))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.cred.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.cred.Passphrase)
	if c.cred.Testnet {
		req.Header.Set("x-simulated-trading", "1")
	}

	return c.http.Do(req)
}

func (c *tradeClient) placeOrder(ctx context.Context, req port.OrderRequest, contracts float64) (port.OrderResult, error) {
	instID := instIDFor(req.Symbol)
	posSide := strings.ToLower(req.PositionSide)

	data, err := c.submitOrder(ctx, orderBody(instID, req, contracts, posSide, false))
	note := ""
	if err != nil && isModeMismatch(err, data) {
		// Net-mode account; drop the posSide hint and mark closes reduce-only.
		log.Warn().
			Str("exchange", "okx").
			Str("instId", instID).
			Str("posSide", posSide).
			Msg("position mode mismatch, retrying with posSide=net")
		data, err = c.submitOrder(ctx, orderBody(instID, req, contracts, "net", req.ReduceOnly))
		note = "retried with posSide=net"
	}
	if err != nil {
		return port.OrderResult{}, fault.Wrap(fault.KindOf(err), err, "okx place order %s", req.Symbol)
	}

	log.Info().
		Str("exchange", "okx").
		Str("instId", instID).
		Str("side", string(req.Side)).
		Float64("contracts", contracts).
		Str("ordId", data.OrdID).
		Msg("order placed")

	// Fills are not echoed synchronously; callers read them back if needed.
	return port.OrderResult{ExchangeOrderID: data.OrdID, Note: note}, nil
}

func orderBody(instID string, req port.OrderRequest, contracts float64, posSide string, reduceOnly bool) map[string]any {
	body := map[string]any{
		"instId":  instID,
		"tdMode":  "cross",
		"side":    strings.ToLower(string(req.Side)),
		"ordType": "market",
		"sz":      exchange.FormatQty(contracts),
	}
	if posSide != "" && posSide != "net" {
		body["posSide"] = posSide
	}
	if reduceOnly {
		body["reduceOnly"] = true
	}
	return body
}

func (c *tradeClient) submitOrder(ctx context.Context, body map[string]any) (orderData, error) {
	raw, err := c.signedRequest(ctx, http.MethodPost, "/api/v5/trade/order", body)
	if err != nil {
		return orderData{}, err
	}
	var resp orderEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return orderData{}, fault.Wrap(fault.KindInternal, err, "okx order response")
	}
	if len(resp.Data) == 0 {
		return orderData{}, fault.New(fault.KindInternal, "okx order rejected: %s", resp.Msg)
	}
	data := resp.Data[0]
	if data.SCode != "" && data.SCode != "0" {
		return data, fault.New(fault.KindInternal, "okx order rejected (%s): %s", data.SCode, data.SMsg)
	}
	return data, nil
}

func isModeMismatch(err error, data orderData) bool {
	if data.SCode == codePositionModeMismatch {
		return true
	}
	return err != nil && strings.Contains(err.Error(), codePositionModeMismatch)
}

func (c *tradeClient) cancelOrder(ctx context.Context, instID, orderID string) error {
	body := map[string]any{"instId": instID, "ordId": orderID}
	raw, err := c.signedRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", body)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "okx cancel order %s", orderID)
	}
	var resp orderEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fault.Wrap(fault.KindInternal, err, "okx cancel response")
	}
	if resp.Code != "0" {
		return fault.New(fault.KindInternal, "okx cancel rejected: %s", resp.Msg)
	}
	log.Info().Str("exchange", "okx").Str("instId", instID).Str("ordId", orderID).Msg("order cancelled")
	return nil
}

func (c *tradeClient) setLeverage(ctx context.Context, instID string, leverage float64) error {
	body := map[string]any{
		"instId":  instID,
		"lever":   exchange.FormatQty(leverage),
		"mgnMode": "cross",
	}
	raw, err := c.signedRequest(ctx, http.MethodPost, "/api/v5/account/set-leverage", body)
	if err != nil {
		return fault.Wrap(fault.KindOf(err), err, "okx set leverage %s", instID)
	}
	var resp orderEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fault.Wrap(fault.KindInternal, err, "okx leverage response")
	}
	if resp.Code != "0" {
		return fault.New(fault.KindInternal, "okx set leverage rejected: %s", resp.Msg)
	}
	return nil
}
