package gateio

import (
	"testing"
	"time"

	"fundarb/internal/domain/model"
)

func TestSnapshotsFromContractsUnifiedTier(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	contracts := []contractRow{
		{
			Name:             "BTC_USDT",
			FundingRate:      "0.0001",
			FundingInterval:  28800,
			FundingNextApply: float64(now.Add(4 * time.Hour).Unix()),
			MarkPrice:        "65000",
			QuantoMultiplier: "0.0001",
			LeverageMax:      "125",
		},
		{Name: "DOGE_USDT", FundingRate: "0.0002", FundingInterval: 14400, InDelisting: true},
		{Name: "BTC_USD", FundingRate: "0.0001", FundingInterval: 28800},
	}
	vol := 1.5e9
	volumes := map[string]*float64{"BTC_USDT": &vol}

	snaps := snapshotsFromContracts(contracts, volumes, nil, now)
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %+v, want the one live USDT contract", snaps)
	}
	got := snaps[0]
	if got.Symbol != "BTCUSDT" || got.SourceTag != model.SourceCCXT {
		t.Fatalf("snapshot = %+v, want BTCUSDT tagged ccxt", got)
	}
	if got.FundingIntervalHours == nil || *got.FundingIntervalHours != 8 {
		t.Fatalf("interval = %v, want 8h", got.FundingIntervalHours)
	}
	if got.MaxLeverage == nil || *got.MaxLeverage != 125 {
		t.Fatalf("max leverage = %v, want 125", got.MaxLeverage)
	}
	if got.Volume24hUSD == nil || *got.Volume24hUSD != vol {
		t.Fatalf("volume = %v, want %v", got.Volume24hUSD, vol)
	}
}

func TestSnapshotsFromTickersFallbackTier(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	tickers := []tickerRow{
		{Contract: "ETH_USDT", FundingRate: "0.0003", MarkPrice: "3200", Volume24hUSDT: "9e8"},
		{Contract: "ETH_USD", FundingRate: "0.0003"},
		{Contract: "XRP_USDT"},
	}

	snaps := snapshotsFromTickers(tickers, nil, now)
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %+v, want the one usable USDT ticker", snaps)
	}
	got := snaps[0]
	if got.Symbol != "ETHUSDT" || got.SourceTag != model.SourceREST {
		t.Fatalf("snapshot = %+v, want ETHUSDT tagged rest", got)
	}
	if got.NextFundingTime != nil {
		t.Fatalf("tickers carry no settlement schedule, got %v", got.NextFundingTime)
	}
	if got.FundingIntervalHours == nil || *got.FundingIntervalHours != 8 {
		t.Fatalf("interval = %v, want the 8h fallback", got.FundingIntervalHours)
	}
	if got.NominalRate1y == nil {
		t.Fatalf("rates must still derive from the raw funding rate")
	}
}
