package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	domsvc "fundarb/internal/domain/service"
)

// Risk event types written by the executor.
const (
	EventFirstLegFailed      = "open_first_leg_failed"
	EventSecondLegRolledBack = "open_second_leg_failed_rolled_back"
	EventRollbackFailed      = "rollback_failed"
	EventCloseLegFailed      = "close_leg_failed"
	EventHedgeExecuted       = "hedge_executed"
	EventOrderStateUnknown   = "order_state_unknown"
	EventEmergencyClose      = "emergency_close"
)

// Preview fee assumptions when the caller supplies none.
const (
	defaultHoldHours   = 8.0
	defaultTakerFeeBps = 6.0
)

// OpenRequest asks for a new hedged position. Exactly one of Quantity and
// NotionalUSD must be set. Credentials passed inline take precedence over
// the vault for the venues they name.
type OpenRequest struct {
	Symbol        string                              `json:"symbol"`
	LongExchange  model.Exchange                      `json:"long_exchange"`
	ShortExchange model.Exchange                      `json:"short_exchange"`
	Quantity      *float64                            `json:"quantity"`
	NotionalUSD   *float64                            `json:"notional_usd"`
	Leverage      float64                             `json:"leverage"`
	Credentials   map[model.Exchange]model.Credential `json:"credentials,omitempty"`
}

// OpenResult reports the created position and its leg orders.
type OpenResult struct {
	Position *model.Position `json:"position"`
	Orders   []model.Order   `json:"orders"`
}

// PreviewRequest adds holding and fee assumptions on top of an open request.
type PreviewRequest struct {
	OpenRequest
	HoldHours   *float64 `json:"hold_hours"`
	TakerFeeBps *float64 `json:"taker_fee_bps"`
}

// PreviewResult is the no-side-effect view of an open request: the current
// spread, the projected funding PnL over the holding window, the taker fees
// for both legs, and the per-leg notionals the venues would carry.
type PreviewResult struct {
	Symbol           string                   `json:"symbol"`
	Quantity         float64                  `json:"quantity"`
	NotionalUSD      float64                  `json:"notional_usd"`
	LongNotionalUSD  float64                  `json:"long_notional_usd"`
	ShortNotionalUSD float64                  `json:"short_notional_usd"`
	MarkPrice        float64                  `json:"mark_price"`
	RequiredLeverage float64                  `json:"required_leverage"`
	HoldHours        float64                  `json:"hold_hours"`
	TakerFeeBps      float64                  `json:"taker_fee_bps"`
	ExpectedPnLUSD   *float64                 `json:"expected_pnl_usd"`
	EstimatedFeeUSD  float64                  `json:"estimated_fee_usd"`
	Long             *model.FundingSnapshot   `json:"long"`
	Short            *model.FundingSnapshot   `json:"short"`
	SpreadRate1y     *float64                 `json:"spread_rate_1y_nominal"`
	NextCycle        *domsvc.NextCycleMetrics `json:"next_cycle"`
}

// CloseRequest unwinds one position, with optional inline credentials.
type CloseRequest struct {
	PositionID  string                              `json:"position_id"`
	Credentials map[model.Exchange]model.Credential `json:"credentials,omitempty"`
}

// CloseResult reports the close orders for one position.
type CloseResult struct {
	Position *model.Position `json:"position"`
	Orders   []model.Order   `json:"orders"`
}

// HedgeRequest asks for a single-sided emergency order on one venue. It
// stands alone; PositionID only links the order row when supplied.
type HedgeRequest struct {
	PositionID  string                              `json:"position_id,omitempty"`
	Symbol      string                              `json:"symbol"`
	Exchange    model.Exchange                      `json:"exchange"`
	Side        model.OrderSide                     `json:"side"`
	Quantity    float64                             `json:"quantity"`
	Reason      string                              `json:"reason"`
	Credentials map[model.Exchange]model.Credential `json:"credentials,omitempty"`
}

// EmergencyCloseRequest sweeps every open position, or just PositionIDs
// when non-empty.
type EmergencyCloseRequest struct {
	PositionIDs []string                            `json:"position_ids"`
	Credentials map[model.Exchange]model.Credential `json:"credentials,omitempty"`
}

// EmergencyCloseResult reports one position's outcome in a sweep.
type EmergencyCloseResult struct {
	PositionID string `json:"position_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// ExecutionService opens, closes and repairs hedged positions. Every order
// and risk event is persisted before the call returns.
type ExecutionService struct {
	market *MarketProvider
	creds  *CredentialService
	store  port.Store

	orderTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

func NewExecutionService(market *MarketProvider, creds *CredentialService, store port.Store, orderTimeout time.Duration) *ExecutionService {
	return &ExecutionService{
		market:       market,
		creds:        creds,
		store:        store,
		orderTimeout: orderTimeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (s *ExecutionService) validateOpen(req *OpenRequest) error {
	req.Symbol = model.NormalizeUSDTSymbol(req.Symbol)
	if req.Symbol == "" {
		return fault.New(fault.KindValidation, "symbol must be a USDT perpetual")
	}
	if !model.IsSupported(string(req.LongExchange)) || !model.IsSupported(string(req.ShortExchange)) {
		return fault.New(fault.KindValidation, "unsupported exchange")
	}
	if req.LongExchange == req.ShortExchange {
		return fault.New(fault.KindValidation, "long and short exchange must differ")
	}
	if (req.Quantity == nil) == (req.NotionalUSD == nil) {
		return fault.New(fault.KindValidation, "exactly one of quantity and notional_usd is required")
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return fault.New(fault.KindValidation, "quantity must be positive")
	}
	if req.NotionalUSD != nil && *req.NotionalUSD <= 0 {
		return fault.New(fault.KindValidation, "notional_usd must be positive")
	}
	if req.Leverage < 1 {
		return fault.New(fault.KindValidation, "leverage must be at least 1")
	}
	return nil
}

// resolveCredential prefers an inline credential over the vault.
func (s *ExecutionService) resolveCredential(ctx context.Context, exchange model.Exchange, inline map[model.Exchange]model.Credential) (model.Credential, error) {
	if cred, ok := inline[exchange]; ok && cred.APIKey != "" && cred.APISecret != "" {
		return cred, nil
	}
	return s.creds.Resolve(ctx, exchange)
}

// ConvertNotional turns a USD notional into a base-asset quantity using the
// binance mark price as the oracle, falling back to the given venue.
func (s *ExecutionService) ConvertNotional(ctx context.Context, symbol string, notionalUSD float64, fallback model.Exchange) (qty, markPrice float64, err error) {
	markPrice, err = s.markPrice(ctx, symbol, fallback)
	if err != nil {
		return 0, 0, err
	}
	return notionalUSD / markPrice, markPrice, nil
}

func (s *ExecutionService) markPrice(ctx context.Context, symbol string, fallback model.Exchange) (float64, error) {
	if adapter, err := s.market.Adapter(model.Binance); err == nil {
		if price, err := adapter.FetchMarkPrice(ctx, symbol); err == nil {
			return price, nil
		}
	}
	if fallback == "" || fallback == model.Binance {
		return 0, fault.New(fault.KindNotSupported, "no mark price available for %s", symbol)
	}
	adapter, err := s.market.Adapter(fallback)
	if err != nil {
		return 0, err
	}
	price, err := adapter.FetchMarkPrice(ctx, symbol)
	if err != nil {
		return 0, fault.Wrap(fault.KindOf(err), err, "mark price for %s", symbol)
	}
	return price, nil
}

// resolveQuantity applies the notional conversion when needed.
func (s *ExecutionService) resolveQuantity(ctx context.Context, req *OpenRequest) (qty, markPrice float64, err error) {
	if req.Quantity != nil {
		price, err := s.markPrice(ctx, req.Symbol, req.LongExchange)
		if err != nil {
			// Mark price is informational when quantity is explicit.
			price = 0
		}
		return *req.Quantity, price, nil
	}
	return s.ConvertNotional(ctx, req.Symbol, *req.NotionalUSD, req.LongExchange)
}

// Preview validates the request and projects the trade without touching any
// venue account. The funding PnL is the nominal annual spread prorated over
// the holding window; fees assume taker on both legs.
func (s *ExecutionService) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if err := s.validateOpen(&req.OpenRequest); err != nil {
		return nil, err
	}
	holdHours := defaultHoldHours
	if req.HoldHours != nil {
		if *req.HoldHours <= 0 {
			return nil, fault.New(fault.KindValidation, "hold_hours must be positive")
		}
		holdHours = *req.HoldHours
	}
	feeBps := defaultTakerFeeBps
	if req.TakerFeeBps != nil {
		if *req.TakerFeeBps < 0 {
			return nil, fault.New(fault.KindValidation, "taker_fee_bps must not be negative")
		}
		feeBps = *req.TakerFeeBps
	}
	qty, markPrice, err := s.resolveQuantity(ctx, &req.OpenRequest)
	if err != nil {
		return nil, err
	}

	longSnap, err := s.market.Snapshot(ctx, req.LongExchange, req.Symbol, false)
	if err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "long leg snapshot")
	}
	shortSnap, err := s.market.Snapshot(ctx, req.ShortExchange, req.Symbol, false)
	if err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "short leg snapshot")
	}

	notional := qty * markPrice
	result := &PreviewResult{
		Symbol:           req.Symbol,
		Quantity:         qty,
		NotionalUSD:      notional,
		LongNotionalUSD:  notional,
		ShortNotionalUSD: notional,
		MarkPrice:        markPrice,
		RequiredLeverage: req.Leverage,
		HoldHours:        holdHours,
		TakerFeeBps:      feeBps,
		EstimatedFeeUSD:  notional * 2 * feeBps / 10000,
		Long:             longSnap,
		Short:            shortSnap,
	}
	if longSnap.NominalRate1y != nil && shortSnap.NominalRate1y != nil {
		spread := *shortSnap.NominalRate1y - *longSnap.NominalRate1y
		result.SpreadRate1y = &spread
		pnl := notional * spread * holdHours / (24 * 365)
		result.ExpectedPnLUSD = &pnl
	}
	leverage := req.Leverage
	metrics := domsvc.CalcNextCycleMetrics(*longSnap, *shortSnap, &leverage, s.now().UTC())
	result.NextCycle = &metrics
	return result, nil
}

// Open places the long leg first, then the short leg. A failed second leg
// rolls the first back; the risk ledger records whichever way it went before
// the call returns.
func (s *ExecutionService) Open(ctx context.Context, req OpenRequest) (*OpenResult, error) {
	if err := s.validateOpen(&req); err != nil {
		return nil, err
	}
	qty, _, err := s.resolveQuantity(ctx, &req)
	if err != nil {
		return nil, err
	}

	longCred, err := s.resolveCredential(ctx, req.LongExchange, req.Credentials)
	if err != nil {
		return nil, err
	}
	shortCred, err := s.resolveCredential(ctx, req.ShortExchange, req.Credentials)
	if err != nil {
		return nil, err
	}
	longAdapter, err := s.market.Adapter(req.LongExchange)
	if err != nil {
		return nil, err
	}
	shortAdapter, err := s.market.Adapter(req.ShortExchange)
	if err != nil {
		return nil, err
	}

	// Leverage is a precondition: an order on the wrong leverage tier is
	// worse than no order.
	if err := longAdapter.SetLeverage(ctx, longCred, req.Symbol, req.Leverage); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "set leverage on %s", req.LongExchange)
	}
	if err := shortAdapter.SetLeverage(ctx, shortCred, req.Symbol, req.Leverage); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "set leverage on %s", req.ShortExchange)
	}

	now := s.now().UTC()
	position := &model.Position{
		ID:            s.newID(),
		Symbol:        req.Symbol,
		LongExchange:  req.LongExchange,
		ShortExchange: req.ShortExchange,
		LongQty:       qty,
		ShortQty:      qty,
		Status:        model.PositionOpen,
		OpenedAt:      now,
		Extra:         map[string]any{"leverage": req.Leverage},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if longSnap, err := s.market.Snapshot(ctx, req.LongExchange, req.Symbol, false); err == nil {
		if shortSnap, err := s.market.Snapshot(ctx, req.ShortExchange, req.Symbol, false); err == nil {
			if longSnap.NominalRate1y != nil && shortSnap.NominalRate1y != nil {
				spread := *shortSnap.NominalRate1y - *longSnap.NominalRate1y
				position.EntrySpreadRate = &spread
			}
		}
	}

	longOrder, longErr := s.placeLeg(ctx, longAdapter, port.OrderRequest{
		Symbol:       req.Symbol,
		Side:         model.Buy,
		Quantity:     qty,
		PositionSide: "LONG",
		Credential:   longCred,
	}, &position.ID, model.ActionOpen)

	if longErr != nil {
		position.Status = model.PositionOpenFailed
		_ = s.persistPosition(ctx, position, longOrder)
		s.appendRiskEvent(ctx, EventFirstLegFailed, model.SeverityHigh,
			"first leg failed; no order reached the short venue",
			map[string]any{
				"position_id":    position.ID,
				"symbol":         req.Symbol,
				"long_exchange":  string(req.LongExchange),
				"short_exchange": string(req.ShortExchange),
				"long_error":     longErr.Error(),
			})
		return nil, fault.Wrap(fault.KindOf(longErr), longErr, "long leg on %s failed", req.LongExchange)
	}

	shortOrder, shortErr := s.placeLeg(ctx, shortAdapter, port.OrderRequest{
		Symbol:       req.Symbol,
		Side:         model.Sell,
		Quantity:     qty,
		PositionSide: "SHORT",
		Credential:   shortCred,
	}, &position.ID, model.ActionOpen)

	if shortErr != nil {
		rollbackOrder, rollbackErr := s.placeLeg(ctx, longAdapter, port.OrderRequest{
			Symbol:       req.Symbol,
			Side:         model.Sell,
			Quantity:     qty,
			ReduceOnly:   true,
			PositionSide: "LONG",
			Credential:   longCred,
		}, &position.ID, model.ActionRollback)

		if rollbackErr != nil {
			position.Status = model.PositionRiskExposed
			_ = s.persistPosition(ctx, position, longOrder, shortOrder, rollbackOrder)
			s.appendRiskEvent(ctx, EventRollbackFailed, model.SeverityCritical,
				"short leg failed and the long leg rollback also failed; the long leg is naked",
				map[string]any{
					"position_id":    position.ID,
					"symbol":         req.Symbol,
					"long_exchange":  string(req.LongExchange),
					"short_exchange": string(req.ShortExchange),
					"short_error":    shortErr.Error(),
					"rollback_error": rollbackErr.Error(),
				})
			return nil, fault.New(fault.KindRisk,
				"short leg failed and rollback failed, long leg exposed on %s", req.LongExchange)
		}

		position.Status = model.PositionOpenFailed
		_ = s.persistPosition(ctx, position, longOrder, shortOrder, rollbackOrder)
		s.appendRiskEvent(ctx, EventSecondLegRolledBack, model.SeverityHigh,
			"short leg failed; the long leg was rolled back",
			map[string]any{
				"position_id":    position.ID,
				"symbol":         req.Symbol,
				"long_exchange":  string(req.LongExchange),
				"short_exchange": string(req.ShortExchange),
				"short_error":    shortErr.Error(),
			})
		return nil, fault.Wrap(fault.KindOf(shortErr), shortErr, "short leg on %s failed, long leg rolled back", req.ShortExchange)
	}

	if err := s.persistPosition(ctx, position, longOrder, shortOrder); err != nil {
		return nil, err
	}
	log.Info().
		Str("position_id", position.ID).
		Str("symbol", req.Symbol).
		Str("long", string(req.LongExchange)).
		Str("short", string(req.ShortExchange)).
		Float64("quantity", qty).
		Msg("position opened")
	return &OpenResult{Position: position, Orders: collectOrders(longOrder, shortOrder)}, nil
}

// placeLeg submits one market order under the order timeout and returns the
// persisted-shape order row. A deadline hit records the order as pending
// with an order_state_unknown warning: the venue may still have filled it.
func (s *ExecutionService) placeLeg(ctx context.Context, adapter port.VenueAdapter, req port.OrderRequest, positionID *string, action model.OrderAction) (*model.Order, error) {
	now := s.now().UTC()
	order := &model.Order{
		ID:         s.newID(),
		PositionID: positionID,
		Action:     action,
		Status:     model.OrderOK,
		Exchange:   adapter.Name(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Extra:      map[string]any{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	orderCtx, cancel := context.WithTimeout(ctx, s.orderTimeout)
	defer cancel()
	result, err := adapter.PlaceOrder(orderCtx, req)
	if err != nil {
		if orderCtx.Err() == context.DeadlineExceeded {
			order.Status = model.OrderPending
			s.appendRiskEvent(ctx, EventOrderStateUnknown, model.SeverityWarning,
				"order timed out; the venue may still have filled it",
				map[string]any{
					"position_id": positionIDString(positionID),
					"exchange":    string(adapter.Name()),
					"symbol":      req.Symbol,
					"side":        string(req.Side),
				})
			return order, fault.Wrap(fault.KindTransient, err, "order timed out on %s", adapter.Name())
		}
		order.Status = model.OrderFailed
		note := err.Error()
		order.Note = &note
		return order, err
	}

	if result.ExchangeOrderID != "" {
		order.ExchangeOrderID = &result.ExchangeOrderID
	}
	order.FilledQty = result.FilledQty
	order.AvgPrice = result.AvgPrice
	if result.Note != "" {
		order.Extra["note"] = result.Note
	}
	return order, nil
}

func positionIDString(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// persistPosition writes the position and its leg orders in one transaction;
// a half-written execution record is worse than none.
func (s *ExecutionService) persistPosition(ctx context.Context, position *model.Position, orders ...*model.Order) error {
	if err := s.store.InsertPositionWithOrders(ctx, position, collectOrders(orders...)); err != nil {
		log.Error().Err(err).Str("position_id", position.ID).Msg("persist position failed")
		return fault.Wrap(fault.KindInternal, err, "persist position %s", position.ID)
	}
	return nil
}

func (s *ExecutionService) appendRiskEvent(ctx context.Context, eventType string, severity model.Severity, message string, eventContext map[string]any) {
	now := s.now().UTC()
	event := &model.RiskEvent{
		ID:        s.newID(),
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		Context:   eventContext,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.AppendRiskEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("persist risk event failed")
	}
}

func collectOrders(orders ...*model.Order) []model.Order {
	var out []model.Order
	for _, o := range orders {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// Close unwinds both legs with reduce-only orders. There is no rollback on a
// partial close: one closed leg is strictly better than two open ones.
func (s *ExecutionService) Close(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	position, err := s.store.GetPosition(ctx, req.PositionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "position %s not found", req.PositionID)
	}
	if position.Status != model.PositionOpen && position.Status != model.PositionRiskExposed {
		return nil, fault.New(fault.KindValidation, "position %s is %s, not closable", req.PositionID, position.Status)
	}

	longCred, err := s.resolveCredential(ctx, position.LongExchange, req.Credentials)
	if err != nil {
		return nil, err
	}
	shortCred, err := s.resolveCredential(ctx, position.ShortExchange, req.Credentials)
	if err != nil {
		return nil, err
	}
	longAdapter, err := s.market.Adapter(position.LongExchange)
	if err != nil {
		return nil, err
	}
	shortAdapter, err := s.market.Adapter(position.ShortExchange)
	if err != nil {
		return nil, err
	}

	longOrder, longErr := s.placeLeg(ctx, longAdapter, port.OrderRequest{
		Symbol:       position.Symbol,
		Side:         model.Sell,
		Quantity:     position.LongQty,
		ReduceOnly:   true,
		PositionSide: "LONG",
		Credential:   longCred,
	}, &position.ID, model.ActionClose)

	shortOrder, shortErr := s.placeLeg(ctx, shortAdapter, port.OrderRequest{
		Symbol:       position.Symbol,
		Side:         model.Buy,
		Quantity:     position.ShortQty,
		ReduceOnly:   true,
		PositionSide: "SHORT",
		Credential:   shortCred,
	}, &position.ID, model.ActionClose)

	for _, order := range collectOrders(longOrder, shortOrder) {
		if err := s.store.InsertOrder(ctx, &order); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("persist order failed")
		}
	}

	if longErr != nil || shortErr != nil {
		s.updateStatus(ctx, position, model.PositionCloseFailed, false)
		s.appendRiskEvent(ctx, EventCloseLegFailed, model.SeverityCritical,
			"close left at least one leg open",
			map[string]any{
				"position_id": position.ID,
				"symbol":      position.Symbol,
				"long_error":  errString(longErr),
				"short_error": errString(shortErr),
			})
		return nil, fault.New(fault.KindRisk, "close failed for position %s, legs may be unbalanced", req.PositionID)
	}

	s.updateStatus(ctx, position, model.PositionClosed, true)
	log.Info().Str("position_id", position.ID).Str("symbol", position.Symbol).Msg("position closed")
	return &CloseResult{Position: position, Orders: collectOrders(longOrder, shortOrder)}, nil
}

func (s *ExecutionService) updateStatus(ctx context.Context, position *model.Position, status model.PositionStatus, closed bool) {
	if err := s.store.UpdatePositionStatus(ctx, position.ID, status, closed); err != nil {
		log.Error().Err(err).Str("position_id", position.ID).Msg("update position status failed")
	}
	position.Status = status
	if closed {
		now := s.now().UTC()
		position.ClosedAt = &now
	}
}

// Hedge places one emergency order on a single venue. It needs no position;
// a warning risk event records the reason whether or not the order went
// through.
func (s *ExecutionService) Hedge(ctx context.Context, req HedgeRequest) (*model.Order, error) {
	if req.Quantity <= 0 {
		return nil, fault.New(fault.KindValidation, "quantity must be positive")
	}
	if req.Side != model.Buy && req.Side != model.Sell {
		return nil, fault.New(fault.KindValidation, "side must be buy or sell")
	}
	if !model.IsSupported(string(req.Exchange)) {
		return nil, fault.New(fault.KindValidation, "unsupported exchange")
	}

	symbol := model.NormalizeUSDTSymbol(req.Symbol)
	var positionID *string
	if req.PositionID != "" {
		position, err := s.store.GetPosition(ctx, req.PositionID)
		if err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "position %s not found", req.PositionID)
		}
		positionID = &position.ID
		if symbol == "" {
			symbol = position.Symbol
		}
	}
	if symbol == "" {
		return nil, fault.New(fault.KindValidation, "symbol must be a USDT perpetual")
	}

	cred, err := s.resolveCredential(ctx, req.Exchange, req.Credentials)
	if err != nil {
		return nil, err
	}
	adapter, err := s.market.Adapter(req.Exchange)
	if err != nil {
		return nil, err
	}

	positionSide := "LONG"
	if req.Side == model.Sell {
		positionSide = "SHORT"
	}
	order, placeErr := s.placeLeg(ctx, adapter, port.OrderRequest{
		Symbol:       symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		PositionSide: positionSide,
		Credential:   cred,
	}, positionID, model.ActionHedge)

	if order != nil {
		if err := s.store.InsertOrder(ctx, order); err != nil {
			log.Error().Err(err).Str("order_id", order.ID).Msg("persist order failed")
		}
	}

	eventContext := map[string]any{
		"exchange": string(req.Exchange),
		"symbol":   symbol,
		"side":     string(req.Side),
		"quantity": req.Quantity,
		"reason":   req.Reason,
	}
	if positionID != nil {
		eventContext["position_id"] = *positionID
	}
	if placeErr != nil {
		eventContext["error"] = placeErr.Error()
		s.appendRiskEvent(ctx, EventHedgeExecuted, model.SeverityWarning,
			"manual hedge failed", eventContext)
		return nil, fault.Wrap(fault.KindOf(placeErr), placeErr, "hedge order on %s failed", req.Exchange)
	}

	s.appendRiskEvent(ctx, EventHedgeExecuted, model.SeverityWarning,
		"manual hedge executed", eventContext)
	return order, nil
}

// EmergencyClose sweeps every open position, continuing past individual
// failures.
func (s *ExecutionService) EmergencyClose(ctx context.Context, req EmergencyCloseRequest) ([]EmergencyCloseResult, error) {
	positions, err := s.store.ListOpenPositions(ctx, req.PositionIDs)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "list open positions")
	}

	results := make([]EmergencyCloseResult, 0, len(positions))
	failed := 0
	for _, position := range positions {
		if _, err := s.Close(ctx, CloseRequest{PositionID: position.ID, Credentials: req.Credentials}); err != nil {
			failed++
			results = append(results, EmergencyCloseResult{
				PositionID: position.ID,
				Status:     "failed",
				Error:      err.Error(),
			})
			continue
		}
		results = append(results, EmergencyCloseResult{PositionID: position.ID, Status: "closed"})
	}

	s.appendRiskEvent(ctx, EventEmergencyClose, emergencySeverity(failed),
		"emergency close sweep finished",
		map[string]any{"total": len(positions), "failed": failed})
	return results, nil
}

func emergencySeverity(failed int) model.Severity {
	if failed > 0 {
		return model.SeverityCritical
	}
	return model.SeverityInfo
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
