// Package okx implements the USDT-SWAP venue adapter.
package okx

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

const (
	baseURL = "https://www.okx.com"

	// Funding rates are only served per instrument; cap the fan-out so one
	// slow venue cannot eat the whole fetch budget.
	fundingWorkers = 8
)

// Adapter serves unified funding snapshots and routes signed trade calls.
type Adapter struct {
	http *exchange.HTTPClient
}

func New(timeout time.Duration) *Adapter {
	return &Adapter{http: exchange.NewHTTPClient(timeout)}
}

func (a *Adapter) Name() model.Exchange { return model.OKX }

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

type instrumentRow struct {
	InstID   string `json:"instId"`
	CtVal    string `json:"ctVal"`
	Lever    string `json:"lever"`
	SettleCy string `json:"settleCcy"`
	State    string `json:"state"`
}

type tickerRow struct {
	InstID   string `json:"instId"`
	Last     string `json:"last"`
	VolCcy24 string `json:"volCcy24h"`
}

type markPriceRow struct {
	InstID    string `json:"instId"`
	MarkPx    string `json:"markPx"`
	Timestamp string `json:"ts"`
}

type fundingRateRow struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

type openInterestRow struct {
	InstID string `json:"instId"`
	OiUSD  string `json:"oiUsd"`
}

func (a *Adapter) getData(ctx context.Context, path string, params url.Values, out any) error {
	return a.http.GetJSON(ctx, baseURL+path, params, out)
}

// FetchFunding lists live USDT swaps, then pulls each instrument's funding
// rate concurrently until the context deadline. Instruments whose funding
// call misses the budget still appear, with a nil raw rate.
func (a *Adapter) FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error) {
	wanted := exchange.WantedSet(symbols)

	params := url.Values{}
	params.Set("instType", "SWAP")
	var instruments envelope[instrumentRow]
	if err := a.getData(ctx, "/api/v5/public/instruments", params, &instruments); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "okx instruments")
	}

	type meta struct {
		instID   string
		leverage *float64
	}
	metas := map[string]meta{}
	for _, inst := range instruments.Data {
		if inst.State != "live" || !strings.EqualFold(inst.SettleCy, "USDT") {
			continue
		}
		symbol := model.NormalizeUSDTSymbol(inst.InstID)
		if symbol == "" || !exchange.Wanted(wanted, symbol) {
			continue
		}
		metas[symbol] = meta{instID: inst.InstID, leverage: exchange.ParseFloat(inst.Lever)}
	}
	if len(metas) == 0 {
		return nil, exchange.ErrEmptyResult
	}

	var tickers envelope[tickerRow]
	volumes := map[string]*float64{}
	if err := a.getData(ctx, "/api/v5/market/tickers", params, &tickers); err != nil {
		log.Warn().Err(err).Msg("okx tickers unavailable, volumes dropped")
	} else {
		for _, t := range tickers.Data {
			volumes[t.InstID] = exchange.ParseFloat(t.VolCcy24)
		}
	}

	var marks envelope[markPriceRow]
	markPrices := map[string]*float64{}
	if err := a.getData(ctx, "/api/v5/public/mark-price", params, &marks); err != nil {
		log.Warn().Err(err).Msg("okx mark-price unavailable")
	} else {
		for _, m := range marks.Data {
			markPrices[m.InstID] = exchange.ParseFloat(m.MarkPx)
		}
	}

	var ois envelope[openInterestRow]
	interest := map[string]*float64{}
	if err := a.getData(ctx, "/api/v5/public/open-interest", params, &ois); err != nil {
		log.Warn().Err(err).Msg("okx open-interest unavailable")
	} else {
		for _, oi := range ois.Data {
			interest[oi.InstID] = exchange.ParseFloat(oi.OiUSD)
		}
	}

	instIDs := make([]string, 0, len(metas))
	for _, m := range metas {
		instIDs = append(instIDs, m.instID)
	}
	funding := a.fetchFundingRates(ctx, instIDs)

	now := time.Now().UTC()
	snaps := make([]model.FundingSnapshot, 0, len(metas))
	for symbol, m := range metas {
		snap := model.FundingSnapshot{
			Exchange:        model.OKX,
			Symbol:          symbol,
			MarkPrice:       markPrices[m.instID],
			OpenInterestUSD: interest[m.instID],
			Volume24hUSD:    volumes[m.instID],
			MaxLeverage:     m.leverage,
			SourceTag:       model.SourceREST,
			FetchedAt:       now,
		}
		if f, ok := funding[m.instID]; ok {
			snap.FundingRateRaw = exchange.ParseFloat(f.FundingRate)
			snap.NextFundingTime = exchange.ParseMillis(f.FundingTime)
			snap.FundingIntervalHours = inferInterval(f)
		}
		snap.DeriveRates()
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// fetchFundingRates fans out per-instrument funding calls. Whatever is done
// when ctx expires is what the snapshot gets.
func (a *Adapter) fetchFundingRates(ctx context.Context, instIDs []string) map[string]fundingRateRow {
	jobs := make(chan string)
	out := map[string]fundingRateRow{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < fundingWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instID := range jobs {
				params := url.Values{}
				params.Set("instId", instID)
				var resp envelope[fundingRateRow]
				if err := a.getData(ctx, "/api/v5/public/funding-rate", params, &resp); err != nil {
					continue
				}
				if len(resp.Data) == 0 {
					continue
				}
				mu.Lock()
				out[instID] = resp.Data[0]
				mu.Unlock()
			}
		}()
	}

feed:
	for _, instID := range instIDs {
		select {
		case jobs <- instID:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

// inferInterval derives the funding interval from the gap between the next
// two settlement instants.
func inferInterval(f fundingRateRow) *float64 {
	cur := exchange.ParseMillis(f.FundingTime)
	next := exchange.ParseMillis(f.NextFundingTime)
	if cur == nil || next == nil || !next.After(*cur) {
		return nil
	}
	hours := next.Sub(*cur).Hours()
	return &hours
}

func instIDFor(symbol string) string {
	base := strings.TrimSuffix(strings.ToUpper(symbol), "USDT")
	return base + "-USDT-SWAP"
}

func (a *Adapter) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("instId", instIDFor(symbol))
	var resp envelope[markPriceRow]
	if err := a.getData(ctx, "/api/v5/public/mark-price", params, &resp); err != nil {
		return 0, fault.Wrap(fault.KindOf(err), err, "okx mark-price %s", symbol)
	}
	if len(resp.Data) == 0 {
		return 0, exchange.SymbolNotFound("okx", symbol)
	}
	price := exchange.ParseFloat(resp.Data[0].MarkPx)
	if price == nil || *price <= 0 {
		return 0, exchange.SymbolNotFound("okx", symbol)
	}
	return *price, nil
}

func (a *Adapter) FetchMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	inst, err := a.instrument(ctx, symbol)
	if err != nil {
		return 0, err
	}
	lever := exchange.ParseFloat(inst.Lever)
	if lever == nil || *lever <= 0 {
		return 0, fault.New(fault.KindNotSupported, "okx leverage unknown for %s", symbol)
	}
	return *lever, nil
}

// ContractSize is ctVal: the base-asset amount behind one contract.
func (a *Adapter) ContractSize(ctx context.Context, symbol string) (float64, error) {
	inst, err := a.instrument(ctx, symbol)
	if err != nil {
		return 0, err
	}
	size := exchange.ParseFloat(inst.CtVal)
	if size == nil || *size <= 0 {
		return 0, fault.New(fault.KindNotSupported, "okx contract size unknown for %s", symbol)
	}
	return *size, nil
}

func (a *Adapter) instrument(ctx context.Context, symbol string) (*instrumentRow, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("instId", instIDFor(symbol))
	var resp envelope[instrumentRow]
	if err := a.getData(ctx, "/api/v5/public/instruments", params, &resp); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "okx instruments %s", symbol)
	}
	if len(resp.Data) == 0 {
		return nil, exchange.SymbolNotFound("okx", symbol)
	}
	return &resp.Data[0], nil
}

// PlaceOrder converts the base-asset quantity into contracts via ctVal
// before submitting.
func (a *Adapter) PlaceOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	size, err := a.ContractSize(ctx, req.Symbol)
	if err != nil {
		return port.OrderResult{}, err
	}
	contracts := req.Quantity / size
	if contracts <= 0 {
		return port.OrderResult{}, fault.New(fault.KindValidation, "okx order size rounds to zero contracts")
	}
	return newTradeClient(a.http, req.Credential).placeOrder(ctx, req, contracts)
}

func (a *Adapter) CancelOrder(ctx context.Context, cred model.Credential, symbol, orderID string) error {
	return newTradeClient(a.http, cred).cancelOrder(ctx, instIDFor(symbol), orderID)
}

func (a *Adapter) SetLeverage(ctx context.Context, cred model.Credential, symbol string, leverage float64) error {
	return newTradeClient(a.http, cred).setLeverage(ctx, instIDFor(symbol), leverage)
}
