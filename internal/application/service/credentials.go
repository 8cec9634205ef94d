package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/crypto"
)

// CredentialService is the vault boundary. Plaintext only leaves through
// Resolve, which feeds the execution path; every other read is masked.
type CredentialService struct {
	store     port.CredentialStore
	encryptor *crypto.Encryptor
	now       func() time.Time
}

// NewCredentialService builds the vault; a nil encryptor disables it.
func NewCredentialService(store port.CredentialStore, encryptor *crypto.Encryptor) *CredentialService {
	return &CredentialService{store: store, encryptor: encryptor, now: time.Now}
}

func (s *CredentialService) Enabled() bool { return s.encryptor != nil }

func (s *CredentialService) requireVault() error {
	if s.encryptor == nil {
		return fault.New(fault.KindValidation, "credential vault disabled: no encryption key configured")
	}
	return nil
}

// Upsert encrypts and stores one venue credential. The plaintext is never
// logged; only the masked key appears in the log line.
func (s *CredentialService) Upsert(ctx context.Context, exchange model.Exchange, cred model.Credential) (*model.CredentialStatus, error) {
	if err := s.requireVault(); err != nil {
		return nil, err
	}
	if cred.APIKey == "" || cred.APISecret == "" {
		return nil, fault.New(fault.KindValidation, "api_key and api_secret are required")
	}

	keyEnc, err := s.encryptor.Encrypt(cred.APIKey)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "encrypt api key")
	}
	secretEnc, err := s.encryptor.Encrypt(cred.APISecret)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "encrypt api secret")
	}
	row := port.CredentialRow{
		Exchange:        exchange,
		APIKeyEnc:       keyEnc,
		APISecretEnc:    secretEnc,
		Testnet:         cred.Testnet,
		PortfolioMargin: cred.PortfolioMargin,
		UpdatedAtUnix:   s.now().UTC().Unix(),
	}
	if cred.Passphrase != "" {
		passEnc, err := s.encryptor.Encrypt(cred.Passphrase)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "encrypt passphrase")
		}
		row.PassphraseEnc = &passEnc
	}

	if err := s.store.UpsertCredential(ctx, row); err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "store credential")
	}

	log.Info().
		Str("exchange", string(exchange)).
		Str("api_key", model.MaskAPIKey(cred.APIKey)).
		Bool("testnet", cred.Testnet).
		Msg("credential stored")

	status := s.statusFromRow(row)
	return &status, nil
}

// Status lists every supported venue, configured or not.
func (s *CredentialService) Status(ctx context.Context) ([]model.CredentialStatus, error) {
	rows := map[model.Exchange]port.CredentialRow{}
	if s.Enabled() {
		stored, err := s.store.ListCredentials(ctx)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, err, "list credentials")
		}
		for _, row := range stored {
			rows[row.Exchange] = row
		}
	}

	out := make([]model.CredentialStatus, 0, len(model.SupportedExchanges()))
	for _, exchange := range model.SupportedExchanges() {
		row, ok := rows[exchange]
		if !ok {
			out = append(out, model.CredentialStatus{Exchange: exchange})
			continue
		}
		out = append(out, s.statusFromRow(row))
	}
	return out, nil
}

func (s *CredentialService) statusFromRow(row port.CredentialRow) model.CredentialStatus {
	updatedAt := time.Unix(row.UpdatedAtUnix, 0).UTC()
	status := model.CredentialStatus{
		Exchange:        row.Exchange,
		Configured:      true,
		HasPassphrase:   row.PassphraseEnc != nil,
		Testnet:         row.Testnet,
		PortfolioMargin: row.PortfolioMargin,
		UpdatedAt:       &updatedAt,
	}
	// A failed decrypt leaves the masked key empty: the row exists but the
	// master key no longer opens it.
	if apiKey, err := s.encryptor.Decrypt(row.APIKeyEnc); err == nil {
		masked := model.MaskAPIKey(apiKey)
		status.APIKeyMasked = &masked
	}
	return status
}

// Resolve returns the plaintext credential for the execution path.
func (s *CredentialService) Resolve(ctx context.Context, exchange model.Exchange) (model.Credential, error) {
	if err := s.requireVault(); err != nil {
		return model.Credential{}, err
	}
	row, err := s.store.GetCredential(ctx, exchange)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, fault.New(fault.KindAuth, "no credential configured for %s", exchange)
		}
		return model.Credential{}, fault.Wrap(fault.KindInternal, err, "load credential")
	}

	apiKey, err := s.encryptor.Decrypt(row.APIKeyEnc)
	if err != nil {
		return model.Credential{}, fault.Wrap(fault.KindAuth, err, "decrypt credential for %s", exchange)
	}
	apiSecret, err := s.encryptor.Decrypt(row.APISecretEnc)
	if err != nil {
		return model.Credential{}, fault.Wrap(fault.KindAuth, err, "decrypt credential for %s", exchange)
	}
	cred := model.Credential{
		APIKey:          apiKey,
		APISecret:       apiSecret,
		Testnet:         row.Testnet,
		PortfolioMargin: row.PortfolioMargin,
	}
	if row.PassphraseEnc != nil {
		passphrase, err := s.encryptor.Decrypt(*row.PassphraseEnc)
		if err != nil {
			return model.Credential{}, fault.Wrap(fault.KindAuth, err, "decrypt credential for %s", exchange)
		}
		cred.Passphrase = passphrase
	}
	return cred, nil
}

// Delete removes one venue credential. Returns false when nothing existed.
func (s *CredentialService) Delete(ctx context.Context, exchange model.Exchange) (bool, error) {
	if err := s.requireVault(); err != nil {
		return false, err
	}
	deleted, err := s.store.DeleteCredential(ctx, exchange)
	if err != nil {
		return false, fault.Wrap(fault.KindInternal, err, "delete credential")
	}
	if deleted {
		log.Info().Str("exchange", string(exchange)).Msg("credential deleted")
	}
	return deleted, nil
}
