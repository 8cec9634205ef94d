// Package bybit implements the v5 linear-perpetual venue adapter.
package bybit

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
	mainnetBaseURL = "https://api.bybit.com"
	testnetBaseURL = "https://api-testnet.bybit.com"

	instrumentsPageSize = "1000"
)

// Adapter serves unified funding snapshots and routes signed trade calls.
type Adapter struct {
	http    *exchange.HTTPClient
	baseURL string
}

func New(timeout time.Duration) *Adapter {
	return &Adapter{
		http:    exchange.NewHTTPClient(timeout),
		baseURL: mainnetBaseURL,
	}
}

func (a *Adapter) Name() model.Exchange { return model.Bybit }

type envelope[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

type listResult[T any] struct {
	Category       string `json:"category"`
	List           []T    `json:"list"`
	NextPageCursor string `json:"nextPageCursor"`
}

type tickerRow struct {
	Symbol            string `json:"symbol"`
	MarkPrice         string `json:"markPrice"`
	FundingRate       string `json:"fundingRate"`
	NextFundingTime   string `json:"nextFundingTime"`
	Turnover24h       string `json:"turnover24h"`
	OpenInterestValue string `json:"openInterestValue"`
}

type instrumentRow struct {
	Symbol          string `json:"symbol"`
	QuoteCoin       string `json:"quoteCoin"`
	Status          string `json:"status"`
	FundingInterval int    `json:"fundingInterval"`
	LeverageFilter  struct {
		MaxLeverage string `json:"maxLeverage"`
	} `json:"leverageFilter"`
}

// FetchFunding joins the one-shot tickers call with the paged
// instruments-info listing. fundingInterval arrives in minutes.
func (a *Adapter) FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error) {
	wanted := exchange.WantedSet(symbols)

	params := url.Values{}
	params.Set("category", "linear")
	var tickers envelope[listResult[tickerRow]]
	if err := a.http.GetJSON(ctx, a.baseURL+"/v5/market/tickers", params, &tickers); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "bybit tickers")
	}
	if tickers.RetCode != 0 {
		return nil, fault.New(fault.KindTransient, "bybit tickers: %s", tickers.RetMsg)
	}
	if len(tickers.Result.List) == 0 {
		return nil, exchange.ErrEmptyResult
	}

	instruments, err := a.fetchInstruments(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("bybit instruments-info unavailable, intervals default to 8h")
		instruments = map[string]instrumentRow{}
	}

	now := time.Now().UTC()
	snaps := make([]model.FundingSnapshot, 0, len(tickers.Result.List))
	for _, t := range tickers.Result.List {
		symbol := model.NormalizeUSDTSymbol(t.Symbol)
		if symbol == "" || !exchange.Wanted(wanted, symbol) {
			continue
		}
		interval := 8.0
		var maxLeverage *float64
		if inst, ok := instruments[t.Symbol]; ok {
			if inst.QuoteCoin != "USDT" {
				continue
			}
			if inst.FundingInterval > 0 {
				interval = float64(inst.FundingInterval) / 60.0
			}
			maxLeverage = exchange.ParseFloat(inst.LeverageFilter.MaxLeverage)
		}
		snap := model.FundingSnapshot{
			Exchange:             model.Bybit,
			Symbol:               symbol,
			FundingRateRaw:       exchange.ParseFloat(t.FundingRate),
			FundingIntervalHours: &interval,
			NextFundingTime:      exchange.ParseMillis(t.NextFundingTime),
			MarkPrice:            exchange.ParseFloat(t.MarkPrice),
			OpenInterestUSD:      exchange.ParseFloat(t.OpenInterestValue),
			Volume24hUSD:         exchange.ParseFloat(t.Turnover24h),
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

func (a *Adapter) fetchInstruments(ctx context.Context) (map[string]instrumentRow, error) {
	out := map[string]instrumentRow{}
	cursor := ""
	for {
		params := url.Values{}
		params.Set("category", "linear")
		params.Set("limit", instrumentsPageSize)
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp envelope[listResult[instrumentRow]]
		if err := a.http.GetJSON(ctx, a.baseURL+"/v5/market/instruments-info", params, &resp); err != nil {
			return nil, err
		}
		if resp.RetCode != 0 {
			return nil, fault.New(fault.KindTransient, "bybit instruments-info: %s", resp.RetMsg)
		}
		for _, inst := range resp.Result.List {
			out[inst.Symbol] = inst
		}
		cursor = resp.Result.NextPageCursor
		if cursor == "" {
			break
		}
	}
	return out, nil
}

func (a *Adapter) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	var resp envelope[listResult[tickerRow]]
	if err := a.http.GetJSON(ctx, a.baseURL+"/v5/market/tickers", params, &resp); err != nil {
		return 0, fault.Wrap(fault.KindOf(err), err, "bybit tickers %s", symbol)
	}
	if resp.RetCode != 0 || len(resp.Result.List) == 0 {
		return 0, exchange.SymbolNotFound("bybit", symbol)
	}
	price := exchange.ParseFloat(resp.Result.List[0].MarkPrice)
	if price == nil || *price <= 0 {
		return 0, exchange.SymbolNotFound("bybit", symbol)
	}
	return *price, nil
}

func (a *Adapter) FetchMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	var resp envelope[listResult[instrumentRow]]
	if err := a.http.GetJSON(ctx, a.baseURL+"/v5/market/instruments-info", params, &resp); err != nil {
		return 0, fault.Wrap(fault.KindOf(err), err, "bybit instruments-info %s", symbol)
	}
	if resp.RetCode != 0 || len(resp.Result.List) == 0 {
		return 0, exchange.SymbolNotFound("bybit", symbol)
	}
	lever := exchange.ParseFloat(resp.Result.List[0].LeverageFilter.MaxLeverage)
	if lever == nil || *lever <= 0 {
		return 0, fault.New(fault.KindNotSupported, "bybit leverage unknown for %s", symbol)
	}
	return *lever, nil
}

// ContractSize is 1: v5 linear orders take base-asset quantities.
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
