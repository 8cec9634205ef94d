package sqlite

import (
	"context"
	"database/sql"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

func (r *Repo) UpsertCredential(ctx context.Context, row port.CredentialRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchange_credentials(exchange, api_key_enc, api_secret_enc, passphrase_enc,
			testnet, portfolio_margin, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange) DO UPDATE SET
		api_key_enc=excluded.api_key_enc, api_secret_enc=excluded.api_secret_enc,
		passphrase_enc=excluded.passphrase_enc, testnet=excluded.testnet,
		portfolio_margin=excluded.portfolio_margin, updated_at=excluded.updated_at
	`, string(row.Exchange), row.APIKeyEnc, row.APISecretEnc, row.PassphraseEnc,
		boolToInt(row.Testnet), boolToInt(row.PortfolioMargin), row.UpdatedAtUnix)
	return err
}

const credentialColumns = `exchange, api_key_enc, api_secret_enc, passphrase_enc, testnet, portfolio_margin, updated_at`

func scanCredential(row interface{ Scan(...any) error }) (*port.CredentialRow, error) {
	var c port.CredentialRow
	var exchangeName string
	var passphrase sql.NullString
	var testnet, portfolioMargin int
	if err := row.Scan(&exchangeName, &c.APIKeyEnc, &c.APISecretEnc, &passphrase,
		&testnet, &portfolioMargin, &c.UpdatedAtUnix); err != nil {
		return nil, err
	}
	c.Exchange = model.Exchange(exchangeName)
	c.PassphraseEnc = stringPtrFromNull(passphrase)
	c.Testnet = testnet != 0
	c.PortfolioMargin = portfolioMargin != 0
	return &c, nil
}

func (r *Repo) GetCredential(ctx context.Context, exchange model.Exchange) (*port.CredentialRow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM exchange_credentials WHERE exchange=?`, string(exchange))
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
		`DELETE FROM exchange_credentials WHERE exchange=?`, string(exchange))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
