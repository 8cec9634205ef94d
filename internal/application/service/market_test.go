package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/cache"
)

func fundingSnap(exchange model.Exchange, symbol string, rate float64, at time.Time) model.FundingSnapshot {
	next := at.Add(4 * time.Hour)
	snap := model.FundingSnapshot{
		Exchange:             exchange,
		Symbol:               symbol,
		FundingRateRaw:       f(rate),
		FundingIntervalHours: f(8),
		NextFundingTime:      &next,
		SourceTag:            model.SourceREST,
		FetchedAt:            at,
	}
	snap.DeriveRates()
	return snap
}

func adapterList(adapters ...*fakeAdapter) []port.VenueAdapter {
	out := make([]port.VenueAdapter, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a)
	}
	return out
}

func TestSnapshotsRefreshThenCacheHit(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	binance := &fakeAdapter{name: model.Binance, snaps: []model.FundingSnapshot{
		fundingSnap(model.Binance, "BTCUSDT", 0.0001, base),
	}}
	bybit := &fakeAdapter{name: model.Bybit, snaps: []model.FundingSnapshot{
		fundingSnap(model.Bybit, "BTCUSDT", 0.0003, base),
	}}

	snapCache := cache.New(5*time.Minute, 2*time.Minute)
	provider := NewMarketProvider(adapterList(binance, bybit), snapCache, nil, time.Second, 2*time.Second)

	data, err := provider.Snapshots(context.Background(), false)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if data.Meta.CacheHit {
		t.Fatalf("first fetch must not be a cache hit")
	}
	if len(data.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(data.Snapshots))
	}
	if len(data.Meta.VenuesOK) != 2 || len(data.Meta.VenuesFailed) != 0 {
		t.Fatalf("meta = %+v, want both venues ok", data.Meta)
	}

	data, err = provider.Snapshots(context.Background(), false)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if !data.Meta.CacheHit {
		t.Fatalf("second fetch should hit the cache")
	}
	if binance.fetchCalls != 1 || bybit.fetchCalls != 1 {
		t.Fatalf("cache hit must not touch venues: binance=%d bybit=%d", binance.fetchCalls, bybit.fetchCalls)
	}

	// force bypasses the cache.
	if _, err := provider.Snapshots(context.Background(), true); err != nil {
		t.Fatalf("forced refresh failed: %v", err)
	}
	if binance.fetchCalls != 2 {
		t.Fatalf("forced refresh must hit venues, calls=%d", binance.fetchCalls)
	}
}

func TestSnapshotsVenueFailureReported(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	ok := &fakeAdapter{name: model.Binance, snaps: []model.FundingSnapshot{
		fundingSnap(model.Binance, "BTCUSDT", 0.0001, base),
	}}
	down := &fakeAdapter{name: model.OKX, fetchErr: errors.New("gateway timeout")}

	snapCache := cache.New(5*time.Minute, 2*time.Minute)
	provider := NewMarketProvider(adapterList(ok, down), snapCache, nil, time.Second, 2*time.Second)

	data, err := provider.Snapshots(context.Background(), true)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(data.Meta.VenuesFailed) != 1 || data.Meta.VenuesFailed[0] != "okx" {
		t.Fatalf("venues_failed = %v, want [okx]", data.Meta.VenuesFailed)
	}
	if len(data.Snapshots) != 1 {
		t.Fatalf("expected the healthy venue's rows only, got %d", len(data.Snapshots))
	}
}

func TestSnapshotsStaleFallback(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	venue := &fakeAdapter{name: model.Bitget, snaps: []model.FundingSnapshot{
		fundingSnap(model.Bitget, "BTCUSDT", 0.0002, base),
	}}

	snapCache := cache.New(5*time.Minute, 10*time.Minute)
	snapCache.SetClock(func() time.Time { return now })
	provider := NewMarketProvider(adapterList(venue), snapCache, nil, time.Second, 2*time.Second)

	if _, err := provider.Snapshots(context.Background(), true); err != nil {
		t.Fatalf("seed refresh failed: %v", err)
	}

	// The venue goes down and the cache entry ages past its TTL but stays
	// inside the stale window.
	venue.fetchErr = errors.New("down")
	now = base.Add(7 * time.Minute)

	data, err := provider.Snapshots(context.Background(), true)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if len(data.Meta.VenuesOK) != 1 {
		t.Fatalf("stale fallback should still count the venue as served, meta=%+v", data.Meta)
	}
	if len(data.Snapshots) != 1 || data.Snapshots[0].SourceTag != model.SourceStale {
		t.Fatalf("expected one stale-tagged row, got %+v", data.Snapshots)
	}
	if data.Meta.Sources[model.Bitget] != model.SourceStale {
		t.Fatalf("meta source = %s, want stale", data.Meta.Sources[model.Bitget])
	}
}

func TestSnapshotsLeverageDataDisabled(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	withLev := fundingSnap(model.Bybit, "BTCUSDT", 0.0003, base)
	withLev.MaxLeverage = f(50)
	withLev.DeriveRates()
	venue := &fakeAdapter{name: model.Bybit, snaps: []model.FundingSnapshot{withLev}}

	snapCache := cache.New(5*time.Minute, 2*time.Minute)
	provider := NewMarketProvider(adapterList(venue), snapCache, nil, time.Second, 2*time.Second)
	provider.SetLeverageData(false)

	data, err := provider.Snapshots(context.Background(), true)
	if err != nil {
		t.Fatalf("Snapshots failed: %v", err)
	}
	if got := data.Snapshots[0]; got.MaxLeverage != nil || got.LeveragedNominalRate1y != nil {
		t.Fatalf("leverage fields must be stripped when disabled, got %+v", got)
	}
}

func TestSnapshotSinglePairCacheFallback(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	venue := &fakeAdapter{name: model.GateIO, snaps: []model.FundingSnapshot{
		fundingSnap(model.GateIO, "ETHUSDT", 0.0001, base),
	}}
	snapCache := cache.New(5*time.Minute, 2*time.Minute)
	provider := NewMarketProvider(adapterList(venue), snapCache, nil, time.Second, 2*time.Second)

	snap, err := provider.Snapshot(context.Background(), model.GateIO, "ETHUSDT", false)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Symbol != "ETHUSDT" {
		t.Fatalf("symbol = %s", snap.Symbol)
	}

	// Cached now: the venue must not be consulted again.
	calls := venue.fetchCalls
	if _, err := provider.Snapshot(context.Background(), model.GateIO, "ETHUSDT", false); err != nil {
		t.Fatalf("cached Snapshot failed: %v", err)
	}
	if venue.fetchCalls != calls {
		t.Fatalf("cached single-pair read must not refetch")
	}

	if _, err := provider.Snapshot(context.Background(), "kraken", "ETHUSDT", false); err == nil {
		t.Fatalf("unknown venue must error")
	}
}
