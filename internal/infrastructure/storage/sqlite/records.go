package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

const defaultListLimit = 200

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPosition(ctx context.Context, db execer, p *model.Position) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO positions(id, symbol, long_exchange, short_exchange, long_qty, short_qty,
			status, entry_spread_rate, opened_at, closed_at, extra, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Symbol, string(p.LongExchange), string(p.ShortExchange), p.LongQty, p.ShortQty,
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
			`UPDATE positions SET status=?, closed_at=?, updated_at=? WHERE id=?`,
			string(status), now, now, id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE positions SET status=?, updated_at=? WHERE id=?`,
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
	row := r.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id=?`, id)
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

// ListOpenPositions returns the open and risk_exposed positions, optionally
// restricted to ids.
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
	_, err := db.ExecContext(ctx, `
		INSERT INTO orders(id, position_id, action, status, exchange, symbol, side, quantity,
			filled_qty, avg_price, exchange_order_id, note, extra, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.PositionID, string(o.Action), string(o.Status), string(o.Exchange), o.Symbol,
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

func (r *Repo) ListOrdersForPosition(ctx context.Context, positionID string) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE position_id=? ORDER BY created_at ASC`, positionID)
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

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
