package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

func f(v float64) *float64 { return &v }

type placeOutcome struct {
	result port.OrderResult
	err    error
}

// fakeAdapter scripts one venue: funding rows, a mark price and a queue of
// order outcomes consumed in call order.
type fakeAdapter struct {
	mu sync.Mutex

	name  model.Exchange
	snaps []model.FundingSnapshot

	fetchErr   error
	fetchCalls int

	markPrice float64
	markErr   error

	placeQueue []placeOutcome
	placeBlock bool
	placed     []port.OrderRequest

	leverageErr   error
	leverageCalls int
}

func (a *fakeAdapter) Name() model.Exchange { return a.name }

func (a *fakeAdapter) FetchFunding(ctx context.Context, symbols []string) ([]model.FundingSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchCalls++
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	out := make([]model.FundingSnapshot, len(a.snaps))
	copy(out, a.snaps)
	return out, nil
}

func (a *fakeAdapter) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if a.markErr != nil {
		return 0, a.markErr
	}
	return a.markPrice, nil
}

func (a *fakeAdapter) FetchMaxLeverage(ctx context.Context, symbol string) (float64, error) {
	return 0, errors.New("not scripted")
}

func (a *fakeAdapter) ContractSize(ctx context.Context, symbol string) (float64, error) {
	return 1, nil
}

func (a *fakeAdapter) PlaceOrder(ctx context.Context, req port.OrderRequest) (port.OrderResult, error) {
	if a.placeBlock {
		<-ctx.Done()
		return port.OrderResult{}, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placed = append(a.placed, req)
	if len(a.placeQueue) == 0 {
		return port.OrderResult{ExchangeOrderID: "fake-1"}, nil
	}
	outcome := a.placeQueue[0]
	a.placeQueue = a.placeQueue[1:]
	return outcome.result, outcome.err
}

func (a *fakeAdapter) CancelOrder(ctx context.Context, cred model.Credential, symbol, orderID string) error {
	return nil
}

func (a *fakeAdapter) SetLeverage(ctx context.Context, cred model.Credential, symbol string, leverage float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leverageCalls++
	return a.leverageErr
}

// fakeStore is an in-memory port.Store.
type fakeStore struct {
	mu sync.Mutex

	positions map[string]*model.Position
	orders    []*model.Order
	events    []*model.RiskEvent
	templates map[string]*model.StrategyTemplate
	creds     map[model.Exchange]port.CredentialRow

	persistErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		positions: map[string]*model.Position{},
		templates: map[string]*model.StrategyTemplate{},
		creds:     map[model.Exchange]port.CredentialRow{},
	}
}

func (s *fakeStore) InsertPosition(ctx context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *fakeStore) InsertPositionWithOrders(ctx context.Context, p *model.Position, orders []model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	cp := *p
	s.positions[p.ID] = &cp
	for i := range orders {
		o := orders[i]
		s.orders = append(s.orders, &o)
	}
	return nil
}

func (s *fakeStore) UpdatePositionStatus(ctx context.Context, id string, status model.PositionStatus, closed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	if closed {
		now := time.Now().UTC()
		p.ClosedAt = &now
	}
	return nil
}

func (s *fakeStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) ListPositions(ctx context.Context, filter port.PositionFilter) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Position
	for _, p := range s.positions {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) ListOpenPositions(ctx context.Context, ids []string) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[string]struct{}{}
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []model.Position
	for _, p := range s.positions {
		if p.Status != model.PositionOpen && p.Status != model.PositionRiskExposed {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[p.ID]; !ok {
				continue
			}
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) InsertOrder(ctx context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *fakeStore) ListOrders(ctx context.Context, filter port.OrderFilter) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if filter.Action != "" && o.Action != filter.Action {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *fakeStore) ListOrdersForPosition(ctx context.Context, positionID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.PositionID != nil && *o.PositionID == positionID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendRiskEvent(ctx context.Context, e *model.RiskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

func (s *fakeStore) ListRiskEvents(ctx context.Context, filter port.RiskFilter) ([]model.RiskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RiskEvent
	for _, e := range s.events {
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *fakeStore) ResolveRiskEvent(ctx context.Context, id string) (*model.RiskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			e.Resolved = true
			cp := *e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) InsertTemplate(ctx context.Context, t *model.StrategyTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateTemplate(ctx context.Context, t *model.StrategyTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *fakeStore) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.templates, id)
	return nil
}

func (s *fakeStore) GetTemplate(ctx context.Context, id string) (*model.StrategyTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) GetTemplateByName(ctx context.Context, name string) (*model.StrategyTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) ListTemplates(ctx context.Context, limit int) ([]model.StrategyTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StrategyTemplate
	for _, t := range s.templates {
		out = append(out, *t)
	}
	return out, nil
}

func (s *fakeStore) UpsertCredential(ctx context.Context, row port.CredentialRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[row.Exchange] = row
	return nil
}

func (s *fakeStore) GetCredential(ctx context.Context, exchange model.Exchange) (*port.CredentialRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.creds[exchange]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (s *fakeStore) ListCredentials(ctx context.Context) ([]port.CredentialRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []port.CredentialRow
	for _, row := range s.creds {
		out = append(out, row)
	}
	return out, nil
}

func (s *fakeStore) DeleteCredential(ctx context.Context, exchange model.Exchange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[exchange]; !ok {
		return false, nil
	}
	delete(s.creds, exchange)
	return true, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
