package sqlite

import (
	"context"
	"database/sql"

	"fundarb/internal/domain/model"
)

const templateColumns = `id, name, symbol, long_exchange, short_exchange, quantity,
	notional_usd, leverage, hold_hours, note, created_at, updated_at`

func (r *Repo) InsertTemplate(ctx context.Context, t *model.StrategyTemplate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO strategy_templates(id, name, symbol, long_exchange, short_exchange,
			quantity, notional_usd, leverage, hold_hours, note, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Symbol, string(t.LongExchange), string(t.ShortExchange),
		t.Quantity, t.NotionalUSD, t.Leverage, t.HoldHours, t.Note,
		t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	return err
}

func (r *Repo) UpdateTemplate(ctx context.Context, t *model.StrategyTemplate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE strategy_templates SET name=?, symbol=?, long_exchange=?, short_exchange=?,
			quantity=?, notional_usd=?, leverage=?, hold_hours=?, note=?, updated_at=?
		WHERE id=?
	`, t.Name, t.Symbol, string(t.LongExchange), string(t.ShortExchange),
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM strategy_templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

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
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM strategy_templates WHERE id=?`, id)
	return scanTemplate(row)
}

func (r *Repo) GetTemplateByName(ctx context.Context, name string) (*model.StrategyTemplate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM strategy_templates WHERE name=?`, name)
	return scanTemplate(row)
}

func (r *Repo) ListTemplates(ctx context.Context, limit int) ([]model.StrategyTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM strategy_templates ORDER BY created_at DESC LIMIT ?`,
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
