package model

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Exchange identifies a supported venue.
type Exchange string

const (
	Binance Exchange = "binance"
	OKX     Exchange = "okx"
	Bybit   Exchange = "bybit"
	Bitget  Exchange = "bitget"
	GateIO  Exchange = "gateio"
)

// SupportedExchanges returns all venues in deterministic name order.
func SupportedExchanges() []Exchange {
	out := []Exchange{Binance, Bitget, Bybit, GateIO, OKX}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSupported reports whether name matches a known venue.
func IsSupported(name string) bool {
	switch Exchange(strings.ToLower(strings.TrimSpace(name))) {
	case Binance, OKX, Bybit, Bitget, GateIO:
		return true
	}
	return false
}

// SourceTag records which transport produced a snapshot.
type SourceTag string

const (
	SourceCCXT  SourceTag = "ccxt"
	SourceREST  SourceTag = "rest"
	SourceWS    SourceTag = "ws"
	SourceStale SourceTag = "stale"
)

// FundingSnapshot is the unified per-venue funding view for one symbol.
type FundingSnapshot struct {
	Exchange             Exchange   `json:"exchange"`
	Symbol               string     `json:"symbol"`
	FundingRateRaw       *float64   `json:"funding_rate_raw"`
	FundingIntervalHours *float64   `json:"funding_interval_hours"`
	NextFundingTime      *time.Time `json:"next_funding_time"`
	MarkPrice            *float64   `json:"mark_price"`
	OpenInterestUSD      *float64   `json:"open_interest_usd"`
	Volume24hUSD         *float64   `json:"volume24h_usd"`
	MaxLeverage          *float64   `json:"max_leverage"`

	Rate1h        *float64 `json:"rate_1h"`
	Rate8h        *float64 `json:"rate_8h"`
	Rate1y        *float64 `json:"rate_1y"`
	NominalRate1y *float64 `json:"rate_1y_nominal"`
	// NominalRate1y times MaxLeverage; nil when leverage is unknown.
	LeveragedNominalRate1y *float64 `json:"leveraged_nominal_rate_1y"`

	SourceTag SourceTag `json:"source_tag"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key identifies a snapshot in the cache.
type Key struct {
	Exchange Exchange
	Symbol   string
}

func (s FundingSnapshot) Key() Key {
	return Key{Exchange: s.Exchange, Symbol: s.Symbol}
}

// DeriveRates fills the rate projections from the raw per-interval rate.
// The compound annual rate is dropped when it overflows.
func (s *FundingSnapshot) DeriveRates() {
	s.Rate1h, s.Rate8h, s.Rate1y, s.NominalRate1y = nil, nil, nil, nil
	s.LeveragedNominalRate1y = nil
	if s.FundingRateRaw == nil || s.FundingIntervalHours == nil || *s.FundingIntervalHours <= 0 {
		return
	}
	r1h := *s.FundingRateRaw / *s.FundingIntervalHours
	r8h := r1h * 8
	nominal := r1h * 24 * 365
	s.Rate1h = &r1h
	s.Rate8h = &r8h
	s.NominalRate1y = &nominal

	compound := math.Pow(1+r1h, 24*365) - 1
	if !math.IsInf(compound, 0) && !math.IsNaN(compound) {
		s.Rate1y = &compound
	}
	if s.MaxLeverage != nil && *s.MaxLeverage > 0 {
		lev := nominal * *s.MaxLeverage
		s.LeveragedNominalRate1y = &lev
	}
}

// NormalizeUSDTSymbol turns venue-specific spellings (BTC-USDT-SWAP,
// BTC_USDT, BTC/USDT) into the canonical BASEUSDT form. Empty result means
// the instrument is not a USDT pair.
func NormalizeUSDTSymbol(raw string) string {
	symbol := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if symbol == "" {
		return ""
	}

	var base string
	switch {
	case strings.Contains(symbol, "/USDT"):
		base = symbol[:strings.Index(symbol, "/USDT")]
	case strings.Contains(symbol, "-USDT"):
		base = symbol[:strings.Index(symbol, "-USDT")]
	case strings.Contains(symbol, "_USDT"):
		base = symbol[:strings.Index(symbol, "_USDT")]
	case strings.HasSuffix(symbol, "USDT"):
		base = symbol[:len(symbol)-len("USDT")]
	default:
		return ""
	}

	var b strings.Builder
	for _, r := range base {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "USDT"
}
