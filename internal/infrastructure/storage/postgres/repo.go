// Package postgres is the pgx-backed persistence backend for shared
// deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

// Ping verifies the server is reachable before the process accepts traffic.
func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  long_exchange TEXT NOT NULL,
  short_exchange TEXT NOT NULL,
  long_qty DOUBLE PRECISION NOT NULL,
  short_qty DOUBLE PRECISION NOT NULL,
  status TEXT NOT NULL,
  entry_spread_rate DOUBLE PRECISION,
  opened_at BIGINT NOT NULL,
  closed_at BIGINT,
  extra JSONB NOT NULL DEFAULT '{}',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);

CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  position_id TEXT,
  action TEXT NOT NULL,
  status TEXT NOT NULL,
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  filled_qty DOUBLE PRECISION,
  avg_price DOUBLE PRECISION,
  exchange_order_id TEXT,
  note TEXT,
  extra JSONB NOT NULL DEFAULT '{}',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_position ON orders(position_id);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);

CREATE TABLE IF NOT EXISTS risk_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  severity TEXT NOT NULL,
  message TEXT NOT NULL,
  context JSONB NOT NULL DEFAULT '{}',
  resolved BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_created ON risk_events(created_at);

CREATE TABLE IF NOT EXISTS strategy_templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  symbol TEXT NOT NULL,
  long_exchange TEXT NOT NULL,
  short_exchange TEXT NOT NULL,
  quantity DOUBLE PRECISION,
  notional_usd DOUBLE PRECISION,
  leverage DOUBLE PRECISION,
  hold_hours DOUBLE PRECISION,
  note TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS exchange_credentials (
  exchange TEXT PRIMARY KEY,
  api_key_enc TEXT NOT NULL,
  api_secret_enc TEXT NOT NULL,
  passphrase_enc TEXT,
  testnet BOOLEAN NOT NULL DEFAULT FALSE,
  portfolio_margin BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at BIGINT NOT NULL
);
`)
	return err
}

// rebind converts ?-placeholders to the $n form so the statement bodies stay
// aligned with the sqlite backend.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func encodeMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func decodeMap(raw string) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(v int64) time.Time { return time.Unix(v, 0).UTC() }

func timePtrFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := timeFromUnix(v.Int64)
	return &t
}

func floatPtrFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

const defaultListLimit = 200

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPosition(ctx context.Context, db execer, p *model.Position) error {
	_, err := db.ExecContext(ctx, rebind(`
		INSERT INTO positions(id, symbol, long_exchange, short_exchange, long_qty, short_qty,
			status, entry_spread_rate, opened_at, closed_at, extra, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.Symbol, string(p.LongExchange), string(p.ShortExchange), p.LongQty, p.ShortQty,
		string(p.Status), p.EntrySpreadRate, p.OpenedAt.Unix(), unixOrNil(p.ClosedAt),
		encodeMap(p.Extra), p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	return err
}

func (r *Repo) InsertPosition(ctx context.Context, p *model.Position) error {
	return insertPosition(ctx, r.db, p)
}

// InsertPositionWithOrders writes the position and its leg orders in one
// transaction.
func (r *Repo) InsertPositionWithOrders(ctx context.Context, p *model.Position, orders []model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertPosition(ctx, tx, p); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i := range orders {
		if err := insertOrder(ctx, tx, &orders[i]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) UpdatePositionStatus(ctx context.Context, id string, status model.PositionStatus, closed bool) error {
	now := time.Now().UTC().Unix()
	var res sql.Result
	var err error
	if closed {
		res, err = r.db.ExecContext(ctx,
			rebind(`UPDATE positions SET status=?, closed_at=?, updated_at=? WHERE id=?`),
			string(status), now, now, id)
	} else {
		res, err = r.db.ExecContext(ctx,
			rebind(`UPDATE positions SET status=?, updated_at=? WHERE id=?`),
			string(status), now, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const positionColumns = `id, symbol, long_exchange, short_exchange, long_qty, short_qty,
	status, entry_spread_rate, opened_at, closed_at, extra, created_at, updated_at`

func scanPosition(row interface{ Scan(...any) error }) (*model.Position, error) {
	var p model.Position
	var longEx, shortEx, status, extra string
	var entrySpread sql.NullFloat64
	var openedAt, createdAt, updatedAt int64
	var closedAt sql.NullInt64
	if err := row.Scan(&p.ID, &p.Symbol, &longEx, &shortEx, &p.LongQty, &p.ShortQty,
		&status, &entrySpread, &openedAt, &closedAt, &extra, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.LongExchange = model.Exchange(longEx)
	p.ShortExchange = model.Exchange(shortEx)
	p.Status = model.PositionStatus(status)
	p.EntrySpreadRate = floatPtrFromNull(entrySpread)
	p.OpenedAt = timeFromUnix(openedAt)
	p.ClosedAt = timePtrFromNull(closedAt)
	p.Extra = decodeMap(extra)
	p.CreatedAt = timeFromUnix(createdAt)
	p.UpdatedAt = timeFromUnix(updatedAt)
	return &p, nil
}

func (r *Repo) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	row := r.db.QueryRowContext(ctx,
		rebind(`SELECT `+positionColumns+` FROM positions WHERE id=?`), id)
	return scanPosition(row)
}

func (r *Repo) ListPositions(ctx context.Context, f port.PositionFilter) ([]model.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions`
	var args []any
	if f.Status != "" {
		query += ` WHERE status=?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(f.Limit))

	return r.queryPositions(ctx, rebind(query), args...)
}

func (r *Repo) ListOpenPositions(ctx context.Context, ids []string) ([]model.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status IN ('open', 'risk_exposed')`
	var args []any
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY opened_at ASC`
	return r.queryPositions(ctx, rebind(query), args...)
}

func (r *Repo) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func insertOrder(ctx context.Context, db execer, o *model.Order) error {
	_, err := db.ExecContext(ctx, rebind(`
		INSERT INTO orders(id, position_id, action, status, exchange, symbol, side, quantity,
			filled_qty, avg_price, exchange_order_id, note, extra, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), o.ID, o.PositionID, string(o.Action), string(o.Status), string(o.Exchange), o.Symbol,
		string(o.Side), o.Quantity, o.FilledQty, o.AvgPrice, o.ExchangeOrderID, o.Note,
		encodeMap(o.Extra), o.CreatedAt.Unix(), o.UpdatedAt.Unix())
	return err
}

func (r *Repo) InsertOrder(ctx context.Context, o *model.Order) error {
	return insertOrder(ctx, r.db, o)
}

const orderColumns = `id, position_id, action, status, exchange, symbol, side, quantity,
	filled_qty, avg_price, exchange_order_id, note, extra, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	var positionID, exchangeOrderID, note sql.NullString
	var action, status, exchangeName, side, extra string
	var filledQty, avgPrice sql.NullFloat64
	var createdAt, updatedAt int64
	if err := row.Scan(&o.ID, &positionID, &action, &status, &exchangeName, &o.Symbol, &side,
		&o.Quantity, &filledQty, &avgPrice, &exchangeOrderID, &note, &extra, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.PositionID = stringPtrFromNull(positionID)
	o.Action = model.OrderAction(action)
	o.Status = model.OrderStatus(status)
	o.Exchange = model.Exchange(exchangeName)
	o.Side = model.OrderSide(side)
	o.FilledQty = floatPtrFromNull(filledQty)
	o.AvgPrice = floatPtrFromNull(avgPrice)
	o.ExchangeOrderID = stringPtrFromNull(exchangeOrderID)
	o.Note = stringPtrFromNull(note)
	o.Extra = decodeMap(extra)
	o.CreatedAt = timeFromUnix(createdAt)
	o.UpdatedAt = timeFromUnix(updatedAt)
	return &o, nil
}

func (r *Repo) ListOrders(ctx context.Context, f port.OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if f.Action != "" {
		query += ` WHERE action=?`
		args = append(args, string(f.Action))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(f.Limit))
	return r.queryOrders(ctx, rebind(query), args...)
}

func (r *Repo) ListOrdersForPosition(ctx context.Context, positionID string) ([]model.Order, error) {
	return r.queryOrders(ctx,
		rebind(`SELECT `+orderColumns+` FROM orders WHERE position_id=? ORDER BY created_at ASC`),
		positionID)
}

func (r *Repo) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) AppendRiskEvent(ctx context.Context, e *model.RiskEvent) error {
	_, err := r.db.ExecContext(ctx, rebind(`
		INSERT INTO risk_events(id, event_type, severity, message, context, resolved, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.EventType, string(e.Severity), e.Message, encodeMap(e.Context),
		e.Resolved, e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	return err
}

const riskColumns = `id, event_type, severity, message, context, resolved, created_at, updated_at`

func scanRiskEvent(row interface{ Scan(...any) error }) (*model.RiskEvent, error) {
	var e model.RiskEvent
	var severity, contextJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.EventType, &severity, &e.Message, &contextJSON,
		&e.Resolved, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Severity = model.Severity(severity)
	e.Context = decodeMap(contextJSON)
	e.CreatedAt = timeFromUnix(createdAt)
	e.UpdatedAt = timeFromUnix(updatedAt)
	return &e, nil
}

func (r *Repo) ListRiskEvents(ctx context.Context, f port.RiskFilter) ([]model.RiskEvent, error) {
	query := `SELECT ` + riskColumns + ` FROM risk_events`
	var clauses []string
	var args []any
	if f.Severity != "" {
		clauses = append(clauses, `severity=?`)
		args = append(args, string(f.Severity))
	}
	if f.Resolved != nil {
		clauses = append(clauses, `resolved=?`)
		args = append(args, *f.Resolved)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(f.Limit))

	rows, err := r.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RiskEvent
	for rows.Next() {
		e, err := scanRiskEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *Repo) ResolveRiskEvent(ctx context.Context, id string) (*model.RiskEvent, error) {
	now := time.Now().UTC().Unix()
	res, err := r.db.ExecContext(ctx,
		rebind(`UPDATE risk_events SET resolved=TRUE, updated_at=? WHERE id=?`), now, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	row := r.db.QueryRowContext(ctx,
		rebind(`SELECT `+riskColumns+` FROM risk_events WHERE id=?`), id)
	return scanRiskEvent(row)
}

func (r *Repo) InsertTemplate(ctx context.Context, t *model.StrategyTemplate) error {
	_, err := r.db.ExecContext(ctx, rebind(`
		INSERT INTO strategy_templates(id, name, symbol, long_exchange, short_exchange,
			quantity, notional_usd, leverage, hold_hours, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.Name, t.Symbol, string(t.LongExchange), string(t.ShortExchange),
		t.Quantity, t.NotionalUSD, t.Leverage, t.HoldHours, t.Note,
		t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	return err
}

func (r *Repo) UpdateTemplate(ctx context.Context, t *model.StrategyTemplate) error {
	res, err := r.db.ExecContext(ctx, rebind(`
		UPDATE strategy_templates SET name=?, symbol=?, long_exchange=?, short_exchange=?,
			quantity=?, notional_usd=?, leverage=?, hold_hours=?, note=?, updated_at=?
		WHERE id=?
	`), t.Name, t.Symbol, string(t.LongExchange), string(t.ShortExchange),
		t.Quantity, t.NotionalUSD, t.Leverage, t.HoldHours, t.Note, t.UpdatedAt.Unix(), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *Repo) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		rebind(`DELETE FROM strategy_templates WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const templateColumns = `id, name, symbol, long_exchange, short_exchange, quantity,
	notional_usd, leverage, hold_hours, note, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*model.StrategyTemplate, error) {
	var t model.StrategyTemplate
	var longEx, shortEx string
	var quantity, notional, leverage, holdHours sql.NullFloat64
	var note sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&t.ID, &t.Name, &t.Symbol, &longEx, &shortEx,
		&quantity, &notional, &leverage, &holdHours, &note, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.LongExchange = model.Exchange(longEx)
	t.ShortExchange = model.Exchange(shortEx)
	t.Quantity = floatPtrFromNull(quantity)
	t.NotionalUSD = floatPtrFromNull(notional)
	t.Leverage = floatPtrFromNull(leverage)
	t.HoldHours = floatPtrFromNull(holdHours)
	t.Note = stringPtrFromNull(note)
	t.CreatedAt = timeFromUnix(createdAt)
	t.UpdatedAt = timeFromUnix(updatedAt)
	return &t, nil
}

func (r *Repo) GetTemplate(ctx context.Context, id string) (*model.StrategyTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		rebind(`SELECT `+templateColumns+` FROM strategy_templates WHERE id=?`), id)
	return scanTemplate(row)
}

func (r *Repo) GetTemplateByName(ctx context.Context, name string) (*model.StrategyTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		rebind(`SELECT `+templateColumns+` FROM strategy_templates WHERE name=?`), name)
	return scanTemplate(row)
}

func (r *Repo) ListTemplates(ctx context.Context, limit int) ([]model.StrategyTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		rebind(`SELECT `+templateColumns+` FROM strategy_templates ORDER BY created_at DESC LIMIT ?`),
		limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StrategyTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertCredential(ctx context.Context, row port.CredentialRow) error {
	_, err := r.db.ExecContext(ctx, rebind(`
		INSERT INTO exchange_credentials(exchange, api_key_enc, api_secret_enc, passphrase_enc,
			testnet, portfolio_margin, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange) DO UPDATE SET
		api_key_enc=excluded.api_key_enc, api_secret_enc=excluded.api_secret_enc,
		passphrase_enc=excluded.passphrase_enc, testnet=excluded.testnet,
		portfolio_margin=excluded.portfolio_margin, updated_at=excluded.updated_at
	`), string(row.Exchange), row.APIKeyEnc, row.APISecretEnc, row.PassphraseEnc,
		row.Testnet, row.PortfolioMargin, row.UpdatedAtUnix)
	return err
}

const credentialColumns = `exchange, api_key_enc, api_secret_enc, passphrase_enc, testnet, portfolio_margin, updated_at`

func scanCredential(row interface{ Scan(...any) error }) (*port.CredentialRow, error) {
	var c port.CredentialRow
	var exchangeName string
	var passphrase sql.NullString
	if err := row.Scan(&exchangeName, &c.APIKeyEnc, &c.APISecretEnc, &passphrase,
		&c.Testnet, &c.PortfolioMargin, &c.UpdatedAtUnix); err != nil {
		return nil, err
	}
	c.Exchange = model.Exchange(exchangeName)
	c.PassphraseEnc = stringPtrFromNull(passphrase)
	return &c, nil
}

func (r *Repo) GetCredential(ctx context.Context, exchange model.Exchange) (*port.CredentialRow, error) {
	row := r.db.QueryRowContext(ctx,
		rebind(`SELECT `+credentialColumns+` FROM exchange_credentials WHERE exchange=?`),
		string(exchange))
	return scanCredential(row)
}

func (r *Repo) ListCredentials(ctx context.Context) ([]port.CredentialRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM exchange_credentials ORDER BY exchange ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.CredentialRow
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteCredential(ctx context.Context, exchange model.Exchange) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		rebind(`DELETE FROM exchange_credentials WHERE exchange=?`), string(exchange))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

var _ port.Store = (*Repo)(nil)
