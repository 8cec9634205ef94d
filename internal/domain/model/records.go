package model

import "time"

// PositionStatus moves forward only: open -> closed, open -> risk_exposed ->
// closed, or a terminal open_failed/close_failed.
type PositionStatus string

const (
	PositionOpen        PositionStatus = "open"
	PositionClosed      PositionStatus = "closed"
	PositionRiskExposed PositionStatus = "risk_exposed"
	PositionOpenFailed  PositionStatus = "open_failed"
	PositionCloseFailed PositionStatus = "close_failed"
)

// OrderAction names the executor step that produced an order.
type OrderAction string

const (
	ActionOpen     OrderAction = "open"
	ActionClose    OrderAction = "close"
	ActionHedge    OrderAction = "hedge"
	ActionRollback OrderAction = "rollback"
)

// OrderStatus is the terminal state of one leg order.
type OrderStatus string

const (
	OrderOK      OrderStatus = "ok"
	OrderFailed  OrderStatus = "failed"
	OrderPending OrderStatus = "pending"
)

// OrderSide is the venue-facing direction.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Severity ranks a risk event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Position is a paired long/short holding. Quantities are base-asset units.
type Position struct {
	ID              string         `json:"id"`
	Symbol          string         `json:"symbol"`
	LongExchange    Exchange       `json:"long_exchange"`
	ShortExchange   Exchange       `json:"short_exchange"`
	LongQty         float64        `json:"long_qty"`
	ShortQty        float64        `json:"short_qty"`
	Status          PositionStatus `json:"status"`
	EntrySpreadRate *float64       `json:"entry_spread_rate"`
	OpenedAt        time.Time      `json:"opened_at"`
	ClosedAt        *time.Time     `json:"closed_at"`
	Extra           map[string]any `json:"extra"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Order is one leg order as sent to a venue. Quantity is base-asset units
// even when the venue itself trades in contracts.
type Order struct {
	ID              string         `json:"id"`
	PositionID      *string        `json:"position_id"`
	Action          OrderAction    `json:"action"`
	Status          OrderStatus    `json:"status"`
	Exchange        Exchange       `json:"exchange"`
	Symbol          string         `json:"symbol"`
	Side            OrderSide      `json:"side"`
	Quantity        float64        `json:"quantity"`
	FilledQty       *float64       `json:"filled_qty"`
	AvgPrice        *float64       `json:"avg_price"`
	ExchangeOrderID *string        `json:"exchange_order_id"`
	Note            *string        `json:"note"`
	Extra           map[string]any `json:"extra"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RiskEvent is an append-only ledger entry. Resolved flips once.
type RiskEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Resolved  bool           `json:"resolved"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StrategyTemplate is a saved parameter preset for the execution form.
type StrategyTemplate struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	LongExchange  Exchange  `json:"long_exchange"`
	ShortExchange Exchange  `json:"short_exchange"`
	Quantity      *float64  `json:"quantity"`
	NotionalUSD   *float64  `json:"notional_usd"`
	Leverage      *float64  `json:"leverage"`
	HoldHours     *float64  `json:"hold_hours"`
	Note          *string   `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
