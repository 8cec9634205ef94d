package port

import (
	"context"

	"fundarb/internal/domain/model"
)

// PositionFilter narrows position listings.
type PositionFilter struct {
	Status model.PositionStatus
	Limit  int
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Action model.OrderAction
	Limit  int
}

// RiskFilter narrows risk-event listings.
type RiskFilter struct {
	Severity model.Severity
	Resolved *bool
	Limit    int
}

// RecordStore persists positions and their leg orders.
type RecordStore interface {
	InsertPosition(ctx context.Context, p *model.Position) error
	// InsertPositionWithOrders writes one position and its leg orders
	// atomically; either all rows land or none do.
	InsertPositionWithOrders(ctx context.Context, p *model.Position, orders []model.Order) error
	UpdatePositionStatus(ctx context.Context, id string, status model.PositionStatus, closed bool) error
	GetPosition(ctx context.Context, id string) (*model.Position, error)
	ListPositions(ctx context.Context, f PositionFilter) ([]model.Position, error)
	ListOpenPositions(ctx context.Context, ids []string) ([]model.Position, error)

	InsertOrder(ctx context.Context, o *model.Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error)
	ListOrdersForPosition(ctx context.Context, positionID string) ([]model.Order, error)
}

// RiskStore is the append-only risk-event ledger.
type RiskStore interface {
	AppendRiskEvent(ctx context.Context, e *model.RiskEvent) error
	ListRiskEvents(ctx context.Context, f RiskFilter) ([]model.RiskEvent, error)
	ResolveRiskEvent(ctx context.Context, id string) (*model.RiskEvent, error)
}

// TemplateStore persists strategy parameter presets.
type TemplateStore interface {
	InsertTemplate(ctx context.Context, t *model.StrategyTemplate) error
	UpdateTemplate(ctx context.Context, t *model.StrategyTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
	GetTemplate(ctx context.Context, id string) (*model.StrategyTemplate, error)
	GetTemplateByName(ctx context.Context, name string) (*model.StrategyTemplate, error)
	ListTemplates(ctx context.Context, limit int) ([]model.StrategyTemplate, error)
}

// CredentialRow is the encrypted at-rest shape; plaintext never reaches the
// storage layer.
type CredentialRow struct {
	Exchange        model.Exchange
	APIKeyEnc       string
	APISecretEnc    string
	PassphraseEnc   *string
	Testnet         bool
	PortfolioMargin bool
	UpdatedAtUnix   int64
}

// CredentialStore persists encrypted credential rows.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, row CredentialRow) error
	GetCredential(ctx context.Context, exchange model.Exchange) (*CredentialRow, error)
	ListCredentials(ctx context.Context) ([]CredentialRow, error)
	DeleteCredential(ctx context.Context, exchange model.Exchange) (bool, error)
}

// Store aggregates every persistence concern behind one handle.
type Store interface {
	RecordStore
	RiskStore
	TemplateStore
	CredentialStore
	Close() error
}

// SnapshotMirror receives board snapshots for out-of-process consumers; a
// nil mirror is valid and drops everything.
type SnapshotMirror interface {
	MirrorSnapshots(ctx context.Context, snapshots []model.FundingSnapshot, sources map[model.Exchange]model.SourceTag) error
}
