// Package binance implements the USDT-M futures venue adapter.
package binance

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
	papiBaseURL    = "https://papi.binance.com"

	// Funding settles every 8h unless fundingInfo overrides it per symbol.
	defaultIntervalHours = 8.0
)

// Adapter serves unified funding snapshots and routes signed trade calls.
type Adapter struct {
	http    *exchange.HTTPClient
	baseURL string

	levMu        sync.Mutex
	levMap       map[string]float64
	levFetchedAt time.Time
}

func New(timeout time.Duration) *Adapter {
	return &Adapter{
		http:    exchange.NewHTTPClient(timeout),
		baseURL: mainnetBaseURL,
	}
}

func (a *Adapter) Name() model.Exchange { return model.Binance }

type premiumIndexRow struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
	Time            int64  `json:"time"`
}

type ticker24hRow struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

type fundingInfoRow struct {
	Symbol               string  `json:"symbol"`
	FundingIntervalHours float64 `json:"fundingIntervalHours"`
}

// FetchFunding merges premiumIndex, ticker/24hr, fundingInfo and the public
// leverage brackets into one snapshot per USDT perpetual.
func (a *Adapter) FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error) {
	wanted := exchange.WantedSet(symbols)

	var premium []premiumIndexRow
	if err := a.http.GetJSON(ctx, a.baseURL+"/fapi/v1/premiumIndex", nil, &premium); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "binance premiumIndex")
	}
	if len(premium) == 0 {
		return nil, exchange.ErrEmptyResult
	}

	volumes := map[string]*float64{}
	var tickers []ticker24hRow
	if err := a.http.GetJSON(ctx, a.baseURL+"/fapi/v1/ticker/24hr", nil, &tickers); err != nil {
		log.Warn().Err(err).Msg("binance ticker/24hr unavailable, volumes dropped")
	} else {
		for _, t := range tickers {
			volumes[t.Symbol] = exchange.ParseFloat(t.QuoteVolume)
		}
	}

	intervals := map[string]float64{}
	var overrides []fundingInfoRow
	if err := a.http.GetJSON(ctx, a.baseURL+"/fapi/v1/fundingInfo", nil, &overrides); err != nil {
		log.Warn().Err(err).Msg("binance fundingInfo unavailable, assuming 8h intervals")
	} else {
		for _, o := range overrides {
			if o.FundingIntervalHours > 0 {
				intervals[o.Symbol] = o.FundingIntervalHours
			}
		}
	}

	leverage, err := a.leverageMap(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("binance leverage brackets unavailable, leverage dropped")
	}

	now := time.Now().UTC()
	snaps := make([]model.FundingSnapshot, 0, len(premium))
	for _, row := range premium {
		symbol := model.NormalizeUSDTSymbol(row.Symbol)
		if symbol == "" || !exchange.Wanted(wanted, symbol) {
			continue
		}
		interval := defaultIntervalHours
		if v, ok := intervals[row.Symbol]; ok {
			interval = v
		}
		snap := model.FundingSnapshot{
			Exchange:             model.Binance,
			Symbol:               symbol,
			FundingRateRaw:       exchange.ParseFloat(row.LastFundingRate),
			FundingIntervalHours: &interval,
			NextFundingTime:      exchange.MillisToTime(row.NextFundingTime),
			MarkPrice:            exchange.ParseFloat(row.MarkPrice),
			Volume24hUSD:         volumes[row.Symbol],
			SourceTag:            model.SourceREST,
			FetchedAt:            now,
		}
		if lev, ok := leverage[symbol]; ok {
			snap.MaxLeverage = &lev
		}
		snap.DeriveRates()
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, exchange.ErrEmptyResult
	}
	return snaps, nil
}

// FetchMarkPrice reads the single-symbol premiumIndex mark price. It doubles
// as the notional-conversion oracle for the whole engine.
func (a *Adapter) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var row premiumIndexRow
	if err := a.http.GetJSON(ctx, a.baseURL+"/fapi/v1/premiumIndex", params, &row); err != nil {
		return 0, fault.Wrap(fault.KindOf(err), err, "binance premiumIndex %s", symbol)
	}
	price := exchange.ParseFloat(row.MarkPrice)
	if price == nil || *price <= 0 {
		return 0, exchange.SymbolNotFound("binance", symbol)
	}
	return *price, nil
}

// FetchMaxLeverage answers from the public bracket data.
func (a *Adapter) FetchMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	leverage, err := a.leverageMap(ctx)
	if err != nil {
		return 0, err
	}
	lev, ok := leverage[model.NormalizeUSDTSymbol(symbol)]
	if !ok {
		return 0, fault.New(fault.KindNotSupported, "binance leverage unknown for %s", symbol)
	}
	return lev, nil
}

// ContractSize is 1: the USDT-M API quotes base-asset quantities directly.
func (a *Adapter) ContractSize(ctx context.Context, symbol string) (float64, error) {
	return 1, nil
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
