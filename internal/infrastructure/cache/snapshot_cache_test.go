package cache

import (
	"testing"
	"time"

	"fundarb/internal/domain/model"
)

func snap(exchange model.Exchange, symbol string, fetchedAt time.Time) model.FundingSnapshot {
	return model.FundingSnapshot{
		Exchange:  exchange,
		Symbol:    symbol,
		SourceTag: model.SourceREST,
		FetchedAt: fetchedAt,
	}
}

func TestCacheFreshStaleMiss(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	c := New(5*time.Minute, 2*time.Minute)
	c.SetClock(func() time.Time { return now })

	c.Put(snap(model.Binance, "BTCUSDT", base))
	key := model.Key{Exchange: model.Binance, Symbol: "BTCUSDT"}

	if _, state := c.Get(key); state != Fresh {
		t.Fatalf("state = %v, want fresh", state)
	}

	now = base.Add(6 * time.Minute)
	got, state := c.Get(key)
	if state != Stale {
		t.Fatalf("state = %v, want stale", state)
	}
	if got.SourceTag != model.SourceStale {
		t.Fatalf("stale reads must be retagged, got %s", got.SourceTag)
	}

	now = base.Add(8 * time.Minute)
	if _, state := c.Get(key); state != Miss {
		t.Fatalf("state = %v, want miss after stale window", state)
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted, len = %d", c.Len())
	}
}

func TestCacheRejectsOlderFetch(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	c := New(5*time.Minute, time.Minute)
	c.SetClock(func() time.Time { return base })

	newer := snap(model.OKX, "ETHUSDT", base)
	older := snap(model.OKX, "ETHUSDT", base.Add(-time.Minute))
	older.MarkPrice = new(float64)

	c.Put(newer)
	c.Put(older)

	got, state := c.Get(model.Key{Exchange: model.OKX, Symbol: "ETHUSDT"})
	if state != Fresh {
		t.Fatalf("state = %v, want fresh", state)
	}
	if got.MarkPrice != nil {
		t.Fatalf("older snapshot must not overwrite the newer one")
	}
}

func TestVenueSnapshotsAllFresh(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	now := base
	c := New(5*time.Minute, 10*time.Minute)
	c.SetClock(func() time.Time { return now })

	c.Put(snap(model.Bybit, "BTCUSDT", base))
	c.Put(snap(model.Bybit, "ETHUSDT", base))

	snaps, allFresh := c.VenueSnapshots(model.Bybit)
	if len(snaps) != 2 || !allFresh {
		t.Fatalf("got %d snaps allFresh=%v, want 2 fresh", len(snaps), allFresh)
	}

	// Refresh one entry, let the other go stale.
	now = base.Add(4 * time.Minute)
	c.Put(snap(model.Bybit, "BTCUSDT", now))
	now = base.Add(7 * time.Minute)

	snaps, allFresh = c.VenueSnapshots(model.Bybit)
	if len(snaps) != 2 {
		t.Fatalf("stale entries inside the window must still serve, got %d", len(snaps))
	}
	if allFresh {
		t.Fatalf("allFresh must be false with a stale entry")
	}

	if snaps, allFresh := c.VenueSnapshots(model.GateIO); len(snaps) != 0 || allFresh {
		t.Fatalf("empty venue must report not-fresh, got %d %v", len(snaps), allFresh)
	}
}
