package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
)

// RecordService reads positions, orders and risk events for the API.
type RecordService struct {
	store port.Store
}

func NewRecordService(store port.Store) *RecordService {
	return &RecordService{store: store}
}

func (s *RecordService) Positions(ctx context.Context, f port.PositionFilter) ([]model.Position, error) {
	out, err := s.store.ListPositions(ctx, f)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "list positions")
	}
	return out, nil
}

func (s *RecordService) Position(ctx context.Context, id string) (*model.Position, error) {
	p, err := s.store.GetPosition(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.KindValidation, "position %s not found", id)
		}
		return nil, fault.Wrap(fault.KindInternal, err, "load position")
	}
	return p, nil
}

func (s *RecordService) Orders(ctx context.Context, f port.OrderFilter) ([]model.Order, error) {
	out, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "list orders")
	}
	return out, nil
}

func (s *RecordService) OrdersForPosition(ctx context.Context, positionID string) ([]model.Order, error) {
	out, err := s.store.ListOrdersForPosition(ctx, positionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "list position orders")
	}
	return out, nil
}

func (s *RecordService) RiskEvents(ctx context.Context, f port.RiskFilter) ([]model.RiskEvent, error) {
	out, err := s.store.ListRiskEvents(ctx, f)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "list risk events")
	}
	return out, nil
}

func (s *RecordService) ResolveRiskEvent(ctx context.Context, id string) (*model.RiskEvent, error) {
	event, err := s.store.ResolveRiskEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.KindValidation, "risk event %s not found", id)
		}
		return nil, fault.Wrap(fault.KindInternal, err, "resolve risk event")
	}
	return event, nil
}

// TemplateService manages saved strategy presets.
type TemplateService struct {
	store port.TemplateStore
	now   func() time.Time
	newID func() string
}

func NewTemplateService(store port.TemplateStore) *TemplateService {
	return &TemplateService{store: store, now: time.Now, newID: uuid.NewString}
}

func (s *TemplateService) validate(t *model.StrategyTemplate) error {
	if t.Name == "" {
		return fault.New(fault.KindValidation, "name is required")
	}
	t.Symbol = model.NormalizeUSDTSymbol(t.Symbol)
	if t.Symbol == "" {
		return fault.New(fault.KindValidation, "symbol must be a USDT perpetual")
	}
	if !model.IsSupported(string(t.LongExchange)) || !model.IsSupported(string(t.ShortExchange)) {
		return fault.New(fault.KindValidation, "unsupported exchange")
	}
	if t.LongExchange == t.ShortExchange {
		return fault.New(fault.KindValidation, "long and short exchange must differ")
	}
	return nil
}

func (s *TemplateService) Create(ctx context.Context, t model.StrategyTemplate) (*model.StrategyTemplate, error) {
	if err := s.validate(&t); err != nil {
		return nil, err
	}
	if existing, err := s.store.GetTemplateByName(ctx, t.Name); err == nil && existing != nil {
		return nil, fault.New(fault.KindValidation, "template name %q already exists", t.Name)
	}
	now := s.now().UTC()
	t.ID = s.newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.store.InsertTemplate(ctx, &t); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "store template")
	}
	return &t, nil
}

func (s *TemplateService) Update(ctx context.Context, id string, t model.StrategyTemplate) (*model.StrategyTemplate, error) {
	if err := s.validate(&t); err != nil {
		return nil, err
	}
	existing, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.KindValidation, "template %s not found", id)
		}
		return nil, fault.Wrap(fault.KindInternal, err, "load template")
	}
	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTemplate(ctx, &t); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "update template")
	}
	return &t, nil
}

func (s *TemplateService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fault.New(fault.KindValidation, "template %s not found", id)
		}
		return fault.Wrap(fault.KindInternal, err, "delete template")
	}
	return nil
}

func (s *TemplateService) Get(ctx context.Context, id string) (*model.StrategyTemplate, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fault.New(fault.KindValidation, "template %s not found", id)
		}
		return nil, fault.Wrap(fault.KindInternal, err, "load template")
	}
	return t, nil
}

func (s *TemplateService) List(ctx context.Context, limit int) ([]model.StrategyTemplate, error) {
	out, err := s.store.ListTemplates(ctx, limit)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "list templates")
	}
	return out, nil
}
