package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func f(v float64) *float64 { return &v }

func testPosition(status model.PositionStatus) *model.Position {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Position{
		ID:              uuid.NewString(),
		Symbol:          "BTCUSDT",
		LongExchange:    model.OKX,
		ShortExchange:   model.Bybit,
		LongQty:         1.5,
		ShortQty:        1.5,
		Status:          status,
		EntrySpreadRate: f(0.12),
		OpenedAt:        now,
		Extra:           map[string]any{"leverage": 3.0},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPositionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := testPosition(model.PositionOpen)
	if err := repo.InsertPosition(ctx, p); err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	got, err := repo.GetPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.Symbol != p.Symbol || got.LongExchange != model.OKX || got.ShortExchange != model.Bybit {
		t.Fatalf("got %+v", got)
	}
	if got.EntrySpreadRate == nil || *got.EntrySpreadRate != 0.12 {
		t.Fatalf("entry spread = %v", got.EntrySpreadRate)
	}
	if got.Extra["leverage"] != 3.0 {
		t.Fatalf("extra = %v", got.Extra)
	}
	if !got.OpenedAt.Equal(p.OpenedAt) {
		t.Fatalf("opened_at = %v, want %v", got.OpenedAt, p.OpenedAt)
	}
	if got.ClosedAt != nil {
		t.Fatalf("closed_at should be nil on an open position")
	}

	if _, err := repo.GetPosition(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing position = %v, want sql.ErrNoRows", err)
	}
}

func TestUpdatePositionStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := testPosition(model.PositionOpen)
	if err := repo.InsertPosition(ctx, p); err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	if err := repo.UpdatePositionStatus(ctx, p.ID, model.PositionClosed, true); err != nil {
		t.Fatalf("UpdatePositionStatus: %v", err)
	}
	got, err := repo.GetPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.Status != model.PositionClosed || got.ClosedAt == nil {
		t.Fatalf("got %+v, want closed with timestamp", got)
	}

	if err := repo.UpdatePositionStatus(ctx, "missing", model.PositionClosed, false); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing update = %v, want sql.ErrNoRows", err)
	}
}

func TestListPositionsFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	open := testPosition(model.PositionOpen)
	closed := testPosition(model.PositionClosed)
	exposed := testPosition(model.PositionRiskExposed)
	for _, p := range []*model.Position{open, closed, exposed} {
		if err := repo.InsertPosition(ctx, p); err != nil {
			t.Fatalf("InsertPosition: %v", err)
		}
	}

	all, err := repo.ListPositions(ctx, port.PositionFilter{})
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}

	onlyOpen, err := repo.ListPositions(ctx, port.PositionFilter{Status: model.PositionOpen})
	if err != nil {
		t.Fatalf("ListPositions(open): %v", err)
	}
	if len(onlyOpen) != 1 || onlyOpen[0].ID != open.ID {
		t.Fatalf("open filter = %+v", onlyOpen)
	}

	// ListOpenPositions includes risk_exposed rows; closed ones never.
	sweep, err := repo.ListOpenPositions(ctx, nil)
	if err != nil {
		t.Fatalf("ListOpenPositions: %v", err)
	}
	if len(sweep) != 2 {
		t.Fatalf("sweep = %d, want open + risk_exposed", len(sweep))
	}
	picked, err := repo.ListOpenPositions(ctx, []string{exposed.ID, closed.ID})
	if err != nil {
		t.Fatalf("ListOpenPositions(ids): %v", err)
	}
	if len(picked) != 1 || picked[0].ID != exposed.ID {
		t.Fatalf("picked = %+v, want the risk_exposed row only", picked)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := testPosition(model.PositionOpen)
	if err := repo.InsertPosition(ctx, p); err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	exchangeOrderID := "ex-123"
	open := &model.Order{
		ID:              uuid.NewString(),
		PositionID:      &p.ID,
		Action:          model.ActionOpen,
		Status:          model.OrderOK,
		Exchange:        model.OKX,
		Symbol:          "BTCUSDT",
		Side:            model.Buy,
		Quantity:        1.5,
		FilledQty:       f(1.5),
		AvgPrice:        f(64250.5),
		ExchangeOrderID: &exchangeOrderID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	hedge := &model.Order{
		ID:        uuid.NewString(),
		Action:    model.ActionHedge,
		Status:    model.OrderFailed,
		Exchange:  model.Bybit,
		Symbol:    "BTCUSDT",
		Side:      model.Sell,
		Quantity:  0.5,
		CreatedAt: now.Add(time.Second),
		UpdatedAt: now.Add(time.Second),
	}
	for _, o := range []*model.Order{open, hedge} {
		if err := repo.InsertOrder(ctx, o); err != nil {
			t.Fatalf("InsertOrder: %v", err)
		}
	}

	hedges, err := repo.ListOrders(ctx, port.OrderFilter{Action: model.ActionHedge})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(hedges) != 1 || hedges[0].ID != hedge.ID {
		t.Fatalf("hedge filter = %+v", hedges)
	}
	if hedges[0].PositionID != nil {
		t.Fatalf("standalone order must keep a nil position id")
	}

	forPosition, err := repo.ListOrdersForPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListOrdersForPosition: %v", err)
	}
	if len(forPosition) != 1 || forPosition[0].ID != open.ID {
		t.Fatalf("position orders = %+v", forPosition)
	}
	got := forPosition[0]
	if got.FilledQty == nil || *got.FilledQty != 1.5 || got.AvgPrice == nil || *got.AvgPrice != 64250.5 {
		t.Fatalf("fills = %v %v", got.FilledQty, got.AvgPrice)
	}
	if got.ExchangeOrderID == nil || *got.ExchangeOrderID != "ex-123" {
		t.Fatalf("exchange order id = %v", got.ExchangeOrderID)
	}
}

func TestInsertPositionWithOrdersIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	p := testPosition(model.PositionOpen)
	legs := []model.Order{
		{
			ID: uuid.NewString(), PositionID: &p.ID, Action: model.ActionOpen,
			Status: model.OrderOK, Exchange: model.OKX, Symbol: "BTCUSDT",
			Side: model.Buy, Quantity: 1.5, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: uuid.NewString(), PositionID: &p.ID, Action: model.ActionOpen,
			Status: model.OrderOK, Exchange: model.Bybit, Symbol: "BTCUSDT",
			Side: model.Sell, Quantity: 1.5, CreatedAt: now, UpdatedAt: now,
		},
	}
	if err := repo.InsertPositionWithOrders(ctx, p, legs); err != nil {
		t.Fatalf("InsertPositionWithOrders: %v", err)
	}
	forPosition, err := repo.ListOrdersForPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListOrdersForPosition: %v", err)
	}
	if len(forPosition) != 2 {
		t.Fatalf("orders = %d, want both legs", len(forPosition))
	}

	// A failing order write must take the position row down with it.
	other := testPosition(model.PositionOpen)
	duplicate := legs[0]
	duplicate.PositionID = &other.ID
	if err := repo.InsertPositionWithOrders(ctx, other, []model.Order{duplicate}); err == nil {
		t.Fatalf("duplicate order id must fail the insert")
	}
	if _, err := repo.GetPosition(ctx, other.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("position survived a failed order write: %v", err)
	}
}

func TestRiskEventLedger(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	warning := &model.RiskEvent{
		ID:        uuid.NewString(),
		EventType: "order_state_unknown",
		Severity:  model.SeverityWarning,
		Message:   "okx order timed out",
		Context:   map[string]any{"exchange": "okx"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	critical := &model.RiskEvent{
		ID:        uuid.NewString(),
		EventType: "rollback_failed",
		Severity:  model.SeverityCritical,
		Message:   "rollback rejected",
		CreatedAt: now.Add(time.Second),
		UpdatedAt: now.Add(time.Second),
	}
	for _, e := range []*model.RiskEvent{warning, critical} {
		if err := repo.AppendRiskEvent(ctx, e); err != nil {
			t.Fatalf("AppendRiskEvent: %v", err)
		}
	}

	crit, err := repo.ListRiskEvents(ctx, port.RiskFilter{Severity: model.SeverityCritical})
	if err != nil {
		t.Fatalf("ListRiskEvents: %v", err)
	}
	if len(crit) != 1 || crit[0].ID != critical.ID {
		t.Fatalf("severity filter = %+v", crit)
	}

	resolved, err := repo.ResolveRiskEvent(ctx, warning.ID)
	if err != nil {
		t.Fatalf("ResolveRiskEvent: %v", err)
	}
	if !resolved.Resolved {
		t.Fatalf("event not marked resolved: %+v", resolved)
	}

	no := false
	unresolved, err := repo.ListRiskEvents(ctx, port.RiskFilter{Resolved: &no})
	if err != nil {
		t.Fatalf("ListRiskEvents(unresolved): %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].ID != critical.ID {
		t.Fatalf("unresolved filter = %+v", unresolved)
	}

	if _, err := repo.ResolveRiskEvent(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing resolve = %v, want sql.ErrNoRows", err)
	}
}

func TestTemplateCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	note := "weekend carry"
	tpl := &model.StrategyTemplate{
		ID:            uuid.NewString(),
		Name:          "btc carry",
		Symbol:        "BTCUSDT",
		LongExchange:  model.Binance,
		ShortExchange: model.Bybit,
		NotionalUSD:   f(5000),
		Leverage:      f(3),
		Note:          &note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.InsertTemplate(ctx, tpl); err != nil {
		t.Fatalf("InsertTemplate: %v", err)
	}

	byName, err := repo.GetTemplateByName(ctx, "btc carry")
	if err != nil {
		t.Fatalf("GetTemplateByName: %v", err)
	}
	if byName.ID != tpl.ID || byName.NotionalUSD == nil || *byName.NotionalUSD != 5000 {
		t.Fatalf("got %+v", byName)
	}
	if byName.Quantity != nil {
		t.Fatalf("quantity should stay nil, got %v", byName.Quantity)
	}

	tpl.Leverage = f(5)
	tpl.UpdatedAt = now.Add(time.Second)
	if err := repo.UpdateTemplate(ctx, tpl); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	got, err := repo.GetTemplate(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.Leverage == nil || *got.Leverage != 5 {
		t.Fatalf("leverage = %v, want 5", got.Leverage)
	}

	list, err := repo.ListTemplates(ctx, 10)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %d, want 1", len(list))
	}

	if err := repo.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if err := repo.DeleteTemplate(ctx, tpl.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second delete = %v, want sql.ErrNoRows", err)
	}
}

func TestCredentialRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pass := "enc:v1:cGFzcw=="
	row := port.CredentialRow{
		Exchange:      model.OKX,
		APIKeyEnc:     "enc:v1:a2V5",
		APISecretEnc:  "enc:v1:c2VjcmV0",
		PassphraseEnc: &pass,
		Testnet:       true,
		UpdatedAtUnix: time.Now().Unix(),
	}
	if err := repo.UpsertCredential(ctx, row); err != nil {
		t.Fatalf("UpsertCredential: %v", err)
	}

	got, err := repo.GetCredential(ctx, model.OKX)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got.APIKeyEnc != row.APIKeyEnc || got.PassphraseEnc == nil || *got.PassphraseEnc != pass {
		t.Fatalf("got %+v", got)
	}
	if !got.Testnet || got.PortfolioMargin {
		t.Fatalf("flags = %+v", got)
	}

	// Upsert replaces in place.
	row.PassphraseEnc = nil
	row.PortfolioMargin = true
	if err := repo.UpsertCredential(ctx, row); err != nil {
		t.Fatalf("UpsertCredential(update): %v", err)
	}
	got, err = repo.GetCredential(ctx, model.OKX)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got.PassphraseEnc != nil || !got.PortfolioMargin {
		t.Fatalf("updated row = %+v", got)
	}

	all, err := repo.ListCredentials(ctx)
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("list = %d, want 1", len(all))
	}

	if deleted, err := repo.DeleteCredential(ctx, model.OKX); err != nil || !deleted {
		t.Fatalf("DeleteCredential = %v %v", deleted, err)
	}
	if deleted, err := repo.DeleteCredential(ctx, model.OKX); err != nil || deleted {
		t.Fatalf("second delete = %v %v, want false", deleted, err)
	}
	if _, err := repo.GetCredential(ctx, model.OKX); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("deleted row = %v, want sql.ErrNoRows", err)
	}
}
