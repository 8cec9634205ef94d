// Package bitget implements the v2 mix (USDT-FUTURES) venue adapter.
package bitget

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

const (
	baseURL     = "https://api.bitget.com"
	productType = "USDT-FUTURES"
)

// Adapter serves unified funding snapshots and routes signed trade calls.
// The tickers feed has no next funding time; that field stays nil here.
type Adapter struct {
	http *exchange.HTTPClient
}

func New(timeout time.Duration) *Adapter {
	return &Adapter{http: exchange.NewHTTPClient(timeout)}
}

func (a *Adapter) Name() model.Exchange { return model.Bitget }

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type tickerRow struct {
	Symbol        string `json:"symbol"`
	MarkPrice     string `json:"markPrice"`
	FundingRate   string `json:"fundingRate"`
	HoldingAmount string `json:"holdingAmount"`
	USDTVolume    string `json:"usdtVolume"`
}

type contractRow struct {
	Symbol       string `json:"symbol"`
	QuoteCoin    string `json:"quoteCoin"`
	MaxLever     string `json:"maxLever"`
	FundInterval string `json:"fundInterval"`
	SymbolStatus string `json:"symbolStatus"`
}

func ok(code string) bool { return code == "00000" }

// FetchFunding joins the tickers and contracts listings. HoldingAmount is in
// base units; it becomes USD via the mark price.
func (a *Adapter) FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error) {
	wanted := exchange.WantedSet(symbols)

	params := url.Values{}
	params.Set("productType", productType)
	var tickers envelope[[]tickerRow]
	if err := a.http.GetJSON(ctx, baseURL+"/api/v2/mix/market/tickers", params, &tickers); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "bitget tickers")
	}
	if !ok(tickers.Code) {
		return nil, fault.New(fault.KindTransient, "bitget tickers: %s", tickers.Msg)
	}
	if len(tickers.Data) == 0 {
		return nil, exchange.ErrEmptyResult
	}

	contracts := map[string]contractRow{}
	var contractsResp envelope[[]contractRow]
	if err := a.http.GetJSON(ctx, baseURL+"/api/v2/mix/market/contracts", params, &contractsResp); err != nil || !ok(contractsResp.Code) {
		log.Warn().Err(err).Msg("bitget contracts unavailable, intervals default to 8h")
	} else {
		for _, c := range contractsResp.Data {
			contracts[c.Symbol] = c
		}
	}

	now := time.Now().UTC()
	snaps := make([]model.FundingSnapshot, 0, len(tickers.Data))
	for _, t := range tickers.Data {
		symbol := model.NormalizeUSDTSymbol(t.Symbol)
		if symbol == "" || !exchange.Wanted(wanted, symbol) {
			continue
		}
		interval := 8.0
		var maxLeverage *float64
		if c, ok := contracts[t.Symbol]; ok {
			if c.QuoteCoin != "USDT" || (c.SymbolStatus != "" && c.SymbolStatus != "normal") {
				continue
			}
			if v := exchange.ParseFloat(c.FundInterval); v != nil && *v > 0 {
				interval = *v
			}
			maxLeverage = exchange.ParseFloat(c.MaxLever)
		}

		mark := exchange.ParseFloat(t.MarkPrice)
		var openInterestUSD *float64
		if holding := exchange.ParseFloat(t.HoldingAmount); holding != nil && mark != nil {
			usd := *holding * *mark
			openInterestUSD = &usd
		}

		snap := model.FundingSnapshot{
			Exchange:             model.Bitget,
			Symbol:               symbol,
			FundingRateRaw:       exchange.ParseFloat(t.FundingRate),
			FundingIntervalHours: &interval,
			MarkPrice:            mark,
			OpenInterestUSD:      openInterestUSD,
			Volume24hUSD:         exchange.ParseFloat(t.USDTVolume),
			MaxLeverage:          maxLeverage,
			SourceTag:            model.SourceREST,
			FetchedAt:            now,
		}
		snap.DeriveRates()
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, exchange.ErrEmptyResult
	}
	return snaps, nil
}

func (a *Adapter) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("productType", productType)
	params.Set("symbol", symbol)
	var resp envelope[[]tickerRow]
	if err := a.http.GetJSON(ctx, baseURL+"/api/v2/mix/market/ticker", params, &resp); err != nil {
		return 0, fault.Wrap(fault.KindOf(err), err, "bitget ticker %s", symbol)
	}
	if !ok(resp.Code) || len(resp.Data) == 0 {
		return 0, exchange.SymbolNotFound("bitget", symbol)
	}
	price := exchange.ParseFloat(resp.Data[0].MarkPrice)
	if price == nil || *price <= 0 {
		return 0, exchange.SymbolNotFound("bitget", symbol)
	}
	return *price, nil
}

func (a *Adapter) FetchMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	c, err := a.contract(ctx, symbol)
	if err != nil {
		return 0, err
	}
	lever := exchange.ParseFloat(c.MaxLever)
	if lever == nil || *lever <= 0 {
		return 0, fault.New(fault.KindNotSupported, "bitget leverage unknown for %s", symbol)
	}
	return *lever, nil
}

// ContractSize is 1: v2 mix order sizes are base-asset amounts.
func (a *Adapter) ContractSize(ctx context.Context, symbol string) (float64, error) {
	return 1, nil
}

func (a *Adapter) contract(ctx context.Context, symbol string) (*contractRow, error) {
	params := url.Values{}
	params.Set("productType", productType)
	params.Set("symbol", symbol)
	var resp envelope[[]contractRow]
	if err := a.http.GetJSON(ctx, baseURL+"/api/v2/mix/market/contracts", params, &resp); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "bitget contracts %s", symbol)
	}
	if !ok(resp.Code) || len(resp.Data) == 0 {
		return nil, exchange.SymbolNotFound("bitget", symbol)
	}
	return &resp.Data[0], nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	return newTradeClient(a.http, req.Credential).placeOrder(ctx, req)
}

func (a *Adapter) CancelOrder(ctx context.Context, cred model.Credential, symbol, orderID string) error {
	return newTradeClient(a.http, cred).cancelOrder(ctx, symbol, orderID)
}

func (a *Adapter) SetLeverage(ctx context.Context, cred model.Credential, symbol string, leverage float64) error {
	return newTradeClient(a.http, cred).setLeverage(ctx, symbol, leverage)
}
