// Package gateio implements the USDT futures venue adapter. Market data has
// a three-tier fallback chain: the unified contracts listing (funding, mark
// and leverage in one call, the ccxt-style tier), then the plain tickers
// endpoint, then the last values cached off the websocket ticker stream.
package gateio

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
)

const baseURL = "https://api.gateio.ws/api/v4"

// Adapter serves unified funding snapshots and routes signed trade calls.
type Adapter struct {
	http *exchange.HTTPClient
	ws   *TickerCache
}

// New builds the adapter; ws may be nil when the stream is disabled.
func New(timeout time.Duration, ws *TickerCache) *Adapter {
	return &Adapter{http: exchange.NewHTTPClient(timeout), ws: ws}
}

func (a *Adapter) Name() model.Exchange { return model.GateIO }

type contractRow struct {
	Name             string  `json:"name"`
	FundingRate      string  `json:"funding_rate"`
	FundingInterval  int64   `json:"funding_interval"`
	FundingNextApply float64 `json:"funding_next_apply"`
	MarkPrice        string  `json:"mark_price"`
	QuantoMultiplier string  `json:"quanto_multiplier"`
	LeverageMax      string  `json:"leverage_max"`
	InDelisting      bool    `json:"in_delisting"`
}

type tickerRow struct {
	Contract      string `json:"contract"`
	FundingRate   string `json:"funding_rate"`
	MarkPrice     string `json:"mark_price"`
	Volume24hUSDT string `json:"volume_24h_settle"`
}

func contractFor(symbol string) string {
	base := strings.TrimSuffix(strings.ToUpper(symbol), "USDT")
	return base + "_USDT"
}

// FetchFunding works down the tier chain: the unified contracts listing
// first, the tickers endpoint when the listing fails, and the websocket
// cache as the last resort.
func (a *Adapter) FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error) {
	wanted := exchange.WantedSet(symbols)
	now := time.Now().UTC()

	var contracts []contractRow
	contractsErr := a.http.GetJSON(ctx, baseURL+"/futures/usdt/contracts", nil, &contracts)
	if contractsErr == nil && len(contracts) == 0 {
		contractsErr = exchange.ErrEmptyResult
	}

	volumes := map[string]*float64{}
	var tickers []tickerRow
	tickersErr := a.http.GetJSON(ctx, baseURL+"/futures/usdt/tickers", nil, &tickers)
	if tickersErr != nil {
		log.Warn().Err(tickersErr).Msg("gateio tickers unavailable, volumes dropped")
	} else {
		for _, t := range tickers {
			volumes[t.Contract] = exchange.ParseFloat(t.Volume24hUSDT)
		}
	}

	if contractsErr == nil {
		if snaps := snapshotsFromContracts(contracts, volumes, wanted, now); len(snaps) > 0 {
			return snaps, nil
		}
		contractsErr = exchange.ErrEmptyResult
	}

	if tickersErr == nil {
		if snaps := snapshotsFromTickers(tickers, wanted, now); len(snaps) > 0 {
			log.Warn().Err(contractsErr).Msg("gateio contracts unavailable, serving tickers")
			return snaps, nil
		}
	}

	if snaps := a.wsSnapshots(wanted); len(snaps) > 0 {
		log.Warn().Err(contractsErr).Msg("gateio contracts unavailable, serving websocket cache")
		return snaps, nil
	}
	return nil, fault.Wrap(fault.KindOf(contractsErr), contractsErr, "gateio contracts")
}

// snapshotsFromContracts builds the unified-tier snapshots: funding, mark,
// leverage and settlement timing all come from the one listing.
func snapshotsFromContracts(contracts []contractRow, volumes map[string]*float64, wanted map[string]struct{}, now time.Time) []model.FundingSnapshot {
	snaps := make([]model.FundingSnapshot, 0, len(contracts))
	for _, c := range contracts {
		if c.InDelisting {
			continue
		}
		symbol := model.NormalizeUSDTSymbol(c.Name)
		if symbol == "" || !exchange.Wanted(wanted, symbol) {
			continue
		}
		var interval *float64
		if c.FundingInterval > 0 {
			hours := float64(c.FundingInterval) / 3600.0
			interval = &hours
		}
		snap := model.FundingSnapshot{
			Exchange:             model.GateIO,
			Symbol:               symbol,
			FundingRateRaw:       exchange.ParseFloat(c.FundingRate),
			FundingIntervalHours: interval,
			NextFundingTime:      exchange.SecondsToTime(int64(c.FundingNextApply)),
			MarkPrice:            exchange.ParseFloat(c.MarkPrice),
			Volume24hUSD:         volumes[c.Name],
			MaxLeverage:          exchange.ParseFloat(c.LeverageMax),
			SourceTag:            model.SourceCCXT,
			FetchedAt:            now,
		}
		snap.DeriveRates()
		snaps = append(snaps, snap)
	}
	return snaps
}

// snapshotsFromTickers is the native-REST tier. Tickers carry no settlement
// schedule, so the interval falls back to 8h and the next funding time
// stays unknown.
func snapshotsFromTickers(tickers []tickerRow, wanted map[string]struct{}, now time.Time) []model.FundingSnapshot {
	interval := 8.0
	snaps := make([]model.FundingSnapshot, 0, len(tickers))
	for _, t := range tickers {
		symbol := model.NormalizeUSDTSymbol(t.Contract)
		if symbol == "" || !exchange.Wanted(wanted, symbol) {
			continue
		}
		rate := exchange.ParseFloat(t.FundingRate)
		if rate == nil {
			continue
		}
		hours := interval
		snap := model.FundingSnapshot{
			Exchange:             model.GateIO,
			Symbol:               symbol,
			FundingRateRaw:       rate,
			FundingIntervalHours: &hours,
			MarkPrice:            exchange.ParseFloat(t.MarkPrice),
			Volume24hUSD:         exchange.ParseFloat(t.Volume24hUSDT),
			SourceTag:            model.SourceREST,
			FetchedAt:            now,
		}
		snap.DeriveRates()
		snaps = append(snaps, snap)
	}
	return snaps
}

func (a *Adapter) wsSnapshots(wanted map[string]struct{}) []model.FundingSnapshot {
	if a.ws == nil {
		return nil
	}
	var out []model.FundingSnapshot
	for _, snap := range a.ws.Snapshots() {
		if exchange.Wanted(wanted, snap.Symbol) {
			out = append(out, snap)
		}
	}
	return out
}

func (a *Adapter) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	c, err := a.contract(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price := exchange.ParseFloat(c.MarkPrice)
	if price == nil || *price <= 0 {
		return 0, exchange.SymbolNotFound("gateio", symbol)
	}
	return *price, nil
}

func (a *Adapter) FetchMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	c, err := a.contract(ctx, symbol)
	if err != nil {
		return 0, err
	}
	lever := exchange.ParseFloat(c.LeverageMax)
	if lever == nil || *lever <= 0 {
		return 0, fault.New(fault.KindNotSupported, "gateio leverage unknown for %s", symbol)
	}
	return *lever, nil
}

// ContractSize is quanto_multiplier: base-asset units per contract.
func (a *Adapter) ContractSize(ctx context.Context, symbol string) (float64, error) {
	c, err := a.contract(ctx, symbol)
	if err != nil {
		return 0, err
	}
	size := exchange.ParseFloat(c.QuantoMultiplier)
	if size == nil || *size <= 0 {
		return 0, fault.New(fault.KindNotSupported, "gateio contract size unknown for %s", symbol)
	}
	return *size, nil
}

func (a *Adapter) contract(ctx context.Context, symbol string) (*contractRow, error) {
	var c contractRow
	endpoint := baseURL + "/futures/usdt/contracts/" + url.PathEscape(contractFor(symbol))
	if err := a.http.GetJSON(ctx, endpoint, nil, &c); err != nil {
		if fault.Is(err, fault.KindNotSupported) {
			return nil, exchange.SymbolNotFound("gateio", symbol)
		}
		return nil, fault.Wrap(fault.KindOf(err), err, "gateio contract %s", symbol)
	}
	return &c, nil
}

// PlaceOrder converts the base-asset quantity into signed integer contracts;
// gateio encodes direction in the sign of size.
func (a *Adapter) PlaceOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	size, err := a.ContractSize(ctx, req.Symbol)
	if err != nil {
		return port.OrderResult{}, err
	}
	contracts := int64(req.Quantity / size)
	if contracts <= 0 {
		return port.OrderResult{}, fault.New(fault.KindValidation, "gateio order size rounds to zero contracts")
	}
	if req.Side == model.Sell {
		contracts = -contracts
	}
	return newTradeClient(a.http, req.Credential).placeOrder(ctx, req, contracts)
}

func (a *Adapter) CancelOrder(ctx context.Context, cred model.Credential, symbol, orderID string) error {
	return newTradeClient(a.http, cred).cancelOrder(ctx, orderID)
}

func (a *Adapter) SetLeverage(ctx context.Context, cred model.Credential, symbol string, leverage float64) error {
	return newTradeClient(a.http, cred).setLeverage(ctx, contractFor(symbol), leverage)
}
