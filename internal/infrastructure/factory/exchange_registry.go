// Package factory builds the per-venue adapter set from configuration.
package factory

import (
	"time"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange/binance"
	"fundarb/internal/infrastructure/exchange/bitget"
	"fundarb/internal/infrastructure/exchange/bybit"
	"fundarb/internal/infrastructure/exchange/gateio"
	"fundarb/internal/infrastructure/exchange/okx"
)

// VenueRegistry holds one adapter per supported venue.
type VenueRegistry struct {
	adapters map[model.Exchange]port.VenueAdapter
}

// NewVenueRegistry constructs every venue adapter with a shared HTTP timeout.
// gateWS is the gateio websocket fallback cache; it is wired here so the
// registry stays the single place adapters are assembled.
func NewVenueRegistry(timeout time.Duration, gateWS *gateio.TickerCache) *VenueRegistry {
	adapters := []port.VenueAdapter{
		binance.New(timeout),
		okx.New(timeout),
		bybit.New(timeout),
		bitget.New(timeout),
		gateio.New(timeout, gateWS),
	}
	byName := make(map[model.Exchange]port.VenueAdapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}
	return &VenueRegistry{adapters: byName}
}

// All returns every registered adapter.
func (r *VenueRegistry) All() []port.VenueAdapter {
	out := make([]port.VenueAdapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		out = append(out, adapter)
	}
	return out
}

// Get returns the adapter for one venue.
func (r *VenueRegistry) Get(exchange model.Exchange) (port.VenueAdapter, bool) {
	adapter, ok := r.adapters[exchange]
	return adapter, ok
}
