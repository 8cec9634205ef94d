// Package service wires the domain logic to venues, storage and callers.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/cache"
)

// FetchMeta describes how one refresh was served.
type FetchMeta struct {
	ElapsedMS    int64                              `json:"elapsed_ms"`
	CacheHit     bool                               `json:"cache_hit"`
	VenuesOK     []string                           `json:"venues_ok"`
	VenuesFailed []string                           `json:"venues_failed"`
	Sources      map[model.Exchange]model.SourceTag `json:"sources"`
}

// MarketData is one consistent view of all venues.
type MarketData struct {
	Snapshots []model.FundingSnapshot
	Meta      FetchMeta
}

// MarketProvider serves funding snapshots from the cache, refreshing venues
// concurrently when the cache cannot. Concurrent non-forced refreshes
// collapse into one venue round-trip.
type MarketProvider struct {
	adapters []port.VenueAdapter
	cache    *cache.SnapshotCache
	mirror   port.SnapshotMirror

	venueBudget time.Duration
	totalBudget time.Duration

	leverageData bool

	group singleflight.Group
	now   func() time.Time
}

func NewMarketProvider(adapters []port.VenueAdapter, snapCache *cache.SnapshotCache, mirror port.SnapshotMirror, venueBudget, totalBudget time.Duration) *MarketProvider {
	sorted := make([]port.VenueAdapter, len(adapters))
	copy(sorted, adapters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	return &MarketProvider{
		adapters:     sorted,
		cache:        snapCache,
		mirror:       mirror,
		venueBudget:  venueBudget,
		totalBudget:  totalBudget,
		leverageData: true,
		now:          time.Now,
	}
}

// SetLeverageData controls whether venue-reported max leverage flows into
// snapshots. Disabled deployments rank unlevered only.
func (p *MarketProvider) SetLeverageData(enabled bool) { p.leverageData = enabled }

// Snapshots returns the current market view. force bypasses the cache check
// and the request collapsing.
func (p *MarketProvider) Snapshots(ctx context.Context, force bool) (*MarketData, error) {
	if force {
		return p.refresh(ctx)
	}
	if data, ok := p.fromCache(); ok {
		return data, nil
	}
	v, err, _ := p.group.Do("refresh", func() (any, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MarketData), nil
}

// fromCache serves the whole board from cache only when every venue has a
// fully fresh set of snapshots.
func (p *MarketProvider) fromCache() (*MarketData, bool) {
	start := p.now()
	var snaps []model.FundingSnapshot
	sources := map[model.Exchange]model.SourceTag{}
	for _, adapter := range p.adapters {
		venueSnaps, allFresh := p.cache.VenueSnapshots(adapter.Name())
		if !allFresh {
			return nil, false
		}
		snaps = append(snaps, venueSnaps...)
		sources[adapter.Name()] = venueSnaps[0].SourceTag
	}

	meta := FetchMeta{
		ElapsedMS: p.now().Sub(start).Milliseconds(),
		CacheHit:  true,
		Sources:   sources,
	}
	for _, adapter := range p.adapters {
		meta.VenuesOK = append(meta.VenuesOK, string(adapter.Name()))
	}
	return &MarketData{Snapshots: snaps, Meta: meta}, true
}

type venueResult struct {
	exchange model.Exchange
	snaps    []model.FundingSnapshot
	source   model.SourceTag
	err      error
}

func (p *MarketProvider) refresh(ctx context.Context) (*MarketData, error) {
	start := p.now()
	ctx, cancel := context.WithTimeout(ctx, p.totalBudget)
	defer cancel()

	results := make([]venueResult, len(p.adapters))
	var wg sync.WaitGroup
	for i, adapter := range p.adapters {
		wg.Add(1)
		go func(i int, adapter port.VenueAdapter) {
			defer wg.Done()
			results[i] = p.fetchVenue(ctx, adapter)
		}(i, adapter)
	}
	wg.Wait()

	meta := FetchMeta{Sources: map[model.Exchange]model.SourceTag{}}
	var snaps []model.FundingSnapshot
	for _, res := range results {
		if res.err != nil {
			meta.VenuesFailed = append(meta.VenuesFailed, string(res.exchange))
			continue
		}
		meta.VenuesOK = append(meta.VenuesOK, string(res.exchange))
		meta.Sources[res.exchange] = res.source
		snaps = append(snaps, res.snaps...)
	}
	meta.ElapsedMS = p.now().Sub(start).Milliseconds()

	if p.mirror != nil && len(snaps) > 0 {
		mirrored := make([]model.FundingSnapshot, len(snaps))
		copy(mirrored, snaps)
		go func() {
			mctx, mcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer mcancel()
			_ = p.mirror.MirrorSnapshots(mctx, mirrored, meta.Sources)
		}()
	}

	return &MarketData{Snapshots: snaps, Meta: meta}, nil
}

// fetchVenue tries the live fetch under the per-venue budget, then falls
// back to whatever the cache still admits.
func (p *MarketProvider) fetchVenue(ctx context.Context, adapter port.VenueAdapter) venueResult {
	exchange := adapter.Name()
	venueCtx, cancel := context.WithTimeout(ctx, p.venueBudget)
	defer cancel()

	snaps, err := adapter.FetchFunding(venueCtx, nil)
	if err == nil && len(snaps) > 0 {
		if !p.leverageData {
			for i := range snaps {
				snaps[i].MaxLeverage = nil
				snaps[i].LeveragedNominalRate1y = nil
			}
		}
		p.cache.PutAll(snaps)
		return venueResult{exchange: exchange, snaps: snaps, source: snaps[0].SourceTag}
	}

	if err == nil {
		// A venue answering with zero perpetuals is as unusable as one that
		// refused the request.
		err = fault.New(fault.KindTransient, "%s returned no funding rows", exchange)
	}
	log.Warn().Err(err).Str("exchange", string(exchange)).Msg("venue fetch failed, trying cache")
	if cached, _ := p.cache.VenueSnapshots(exchange); len(cached) > 0 {
		return venueResult{exchange: exchange, snaps: cached, source: cached[0].SourceTag}
	}
	return venueResult{exchange: exchange, err: err}
}

// Snapshot returns the freshest view of one (exchange, symbol) pair,
// consulting the cache first.
func (p *MarketProvider) Snapshot(ctx context.Context, exchange model.Exchange, symbol string, force bool) (*model.FundingSnapshot, error) {
	if !force {
		if snap, state := p.cache.Get(model.Key{Exchange: exchange, Symbol: symbol}); state != cache.Miss {
			return &snap, nil
		}
	}
	adapter := p.adapter(exchange)
	if adapter == nil {
		return nil, errUnknownExchange(exchange)
	}
	venueCtx, cancel := context.WithTimeout(ctx, p.venueBudget)
	defer cancel()
	snaps, err := adapter.FetchFunding(venueCtx, []string{symbol})
	if err != nil {
		if snap, state := p.cache.Get(model.Key{Exchange: exchange, Symbol: symbol}); state != cache.Miss {
			return &snap, nil
		}
		return nil, err
	}
	p.cache.PutAll(snaps)
	for i := range snaps {
		if snaps[i].Symbol == symbol {
			return &snaps[i], nil
		}
	}
	return nil, errSymbolMissing(exchange, symbol)
}

func (p *MarketProvider) adapter(exchange model.Exchange) port.VenueAdapter {
	for _, a := range p.adapters {
		if a.Name() == exchange {
			return a
		}
	}
	return nil
}

// Adapter exposes a venue adapter for the execution path.
func (p *MarketProvider) Adapter(exchange model.Exchange) (port.VenueAdapter, error) {
	a := p.adapter(exchange)
	if a == nil {
		return nil, errUnknownExchange(exchange)
	}
	return a, nil
}
