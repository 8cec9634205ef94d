package port

import (
	"context"

	"fundarb/internal/domain/model"
)

// OrderRequest asks a venue for a market order. Quantity is base-asset
// units; adapters convert to the venue's native contract unit internally.
type OrderRequest struct {
	Symbol     string
	Side       model.OrderSide
	Quantity   float64
	ReduceOnly bool
	// PositionSide is the leg intent (LONG/SHORT); adapters translate it to
	// their own routing hints and may retry with a neutral value.
	PositionSide string
	Credential   model.Credential
}

// OrderResult reports a placed order with fills converted back to
// base-asset units. Note carries venue-side diagnostics such as retried
// routing hints.
type OrderResult struct {
	ExchangeOrderID string
	FilledQty       *float64
	AvgPrice        *float64
	Note            string
}

// VenueAdapter is the per-exchange capability set. Every error is tagged
// with a fault.Kind; transient tags are the only ones data callers retry.
type VenueAdapter interface {
	Name() model.Exchange

	// FetchFunding returns unified snapshots for all USDT perpetuals, or for
	// the given subset when symbols is non-empty.
	FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error)
	FetchMarkPrice(ctx context.Context, symbol string) (float64, error)
	FetchMaxLeverage(ctx context.Context, symbol string) (float64, error)

	// ContractSize is the base-asset amount represented by one venue
	// contract; 1 for venues that quote base-asset quantities directly.
	ContractSize(ctx context.Context, symbol string) (float64, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, cred model.Credential, symbol, orderID string) error

	// SetLeverage is a precondition for order placement: non-transient
	// failures must abort the surrounding order.
	SetLeverage(ctx context.Context, cred model.Credential, symbol string, leverage float64) error
}
