package model

import (
	"math"
	"testing"
)

func f(v float64) *float64 { return &v }

func TestDeriveRates(t *testing.T) {
	snap := FundingSnapshot{
		Exchange:             Binance,
		Symbol:               "BTCUSDT",
		FundingRateRaw:       f(0.0001),
		FundingIntervalHours: f(8),
		MaxLeverage:          f(20),
	}
	snap.DeriveRates()

	if snap.Rate1h == nil || math.Abs(*snap.Rate1h-0.0000125) > 1e-12 {
		t.Fatalf("rate_1h = %v, want 0.0000125", snap.Rate1h)
	}
	if snap.Rate8h == nil || math.Abs(*snap.Rate8h-0.0001) > 1e-12 {
		t.Fatalf("rate_8h = %v, want 0.0001", snap.Rate8h)
	}
	wantNominal := 0.0000125 * 24 * 365
	if snap.NominalRate1y == nil || math.Abs(*snap.NominalRate1y-wantNominal) > 1e-12 {
		t.Fatalf("rate_1y_nominal = %v, want %v", snap.NominalRate1y, wantNominal)
	}
	if snap.Rate1y == nil || *snap.Rate1y <= *snap.NominalRate1y {
		t.Fatalf("compound rate %v should exceed nominal %v", snap.Rate1y, snap.NominalRate1y)
	}
	if snap.LeveragedNominalRate1y == nil || math.Abs(*snap.LeveragedNominalRate1y-wantNominal*20) > 1e-12 {
		t.Fatalf("leveraged nominal = %v, want %v", snap.LeveragedNominalRate1y, wantNominal*20)
	}
}

func TestDeriveRatesMissingInterval(t *testing.T) {
	snap := FundingSnapshot{FundingRateRaw: f(0.0001)}
	snap.DeriveRates()
	if snap.Rate1h != nil || snap.NominalRate1y != nil {
		t.Fatalf("expected nil rates without an interval, got %v / %v", snap.Rate1h, snap.NominalRate1y)
	}

	snap = FundingSnapshot{FundingRateRaw: f(0.0001), FundingIntervalHours: f(0)}
	snap.DeriveRates()
	if snap.Rate1h != nil {
		t.Fatalf("expected nil rates for zero interval, got %v", snap.Rate1h)
	}
}

func TestDeriveRatesClearsStale(t *testing.T) {
	snap := FundingSnapshot{
		FundingRateRaw:       f(0.0001),
		FundingIntervalHours: f(8),
	}
	snap.DeriveRates()
	snap.FundingRateRaw = nil
	snap.DeriveRates()
	if snap.Rate1h != nil || snap.Rate8h != nil || snap.NominalRate1y != nil {
		t.Fatalf("expected derived rates cleared when raw rate disappears")
	}
}

func TestNormalizeUSDTSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTCUSDT", "BTCUSDT"},
		{"btcusdt", "BTCUSDT"},
		{"BTC-USDT-SWAP", "BTCUSDT"},
		{"BTC_USDT", "BTCUSDT"},
		{"BTC/USDT", "BTCUSDT"},
		{"BTC/USDT:USDT", "BTCUSDT"},
		{"1000PEPE_USDT", "1000PEPEUSDT"},
		{" eth-usdt ", "ETHUSDT"},
		{"BTCUSD", ""},
		{"BTC-USDC-SWAP", ""},
		{"USDT", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeUSDTSymbol(tc.in); got != tc.want {
			t.Errorf("NormalizeUSDTSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abcdefghijklmnop", "abcd***mnop"},
		{"abcdefgh", "ab***"},
		{"ab", "ab***"},
		{"", "-"},
	}
	for _, tc := range cases {
		if got := MaskAPIKey(tc.in); got != tc.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSupportedExchangesSorted(t *testing.T) {
	exchanges := SupportedExchanges()
	if len(exchanges) != 5 {
		t.Fatalf("expected 5 venues, got %d", len(exchanges))
	}
	for i := 1; i < len(exchanges); i++ {
		if exchanges[i-1] >= exchanges[i] {
			t.Fatalf("venues out of order: %v", exchanges)
		}
	}
	if !IsSupported("binance") || !IsSupported(" GATEIO ") {
		t.Errorf("expected binance and gateio to be supported")
	}
	if IsSupported("ftx") {
		t.Errorf("ftx should not be supported")
	}
}
