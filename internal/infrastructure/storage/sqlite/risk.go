package sqlite

import (
	"context"
	"database/sql"
	"time"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

func (r *Repo) AppendRiskEvent(ctx context.Context, e *model.RiskEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_events(id, event_type, severity, message, context, resolved, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EventType, string(e.Severity), e.Message, encodeMap(e.Context),
		boolToInt(e.Resolved), e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	return err
}

const riskColumns = `id, event_type, severity, message, context, resolved, created_at, updated_at`

func scanRiskEvent(row interface{ Scan(...any) error }) (*model.RiskEvent, error) {
	var e model.RiskEvent
	var severity, contextJSON string
	var resolved int
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.EventType, &severity, &e.Message, &contextJSON,
		&resolved, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Severity = model.Severity(severity)
	e.Context = decodeMap(contextJSON)
	e.Resolved = resolved != 0
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
		args = append(args, boolToInt(*f.Resolved))
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

	rows, err := r.db.QueryContext(ctx, query, args...)
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
		`UPDATE risk_events SET resolved=1, updated_at=? WHERE id=?`, now, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+riskColumns+` FROM risk_events WHERE id=?`, id)
	return scanRiskEvent(row)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
