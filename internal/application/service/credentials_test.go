package service

import (
	"context"
	"testing"

	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/crypto"
)

func newVault(t *testing.T, store *fakeStore, key string) *CredentialService {
	t.Helper()
	encryptor, err := crypto.NewEncryptor(key)
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	return NewCredentialService(store, encryptor)
}

func TestCredentialUpsertAndMaskedStatus(t *testing.T) {
	store := newFakeStore()
	vault := newVault(t, store, "unit test master key")
	ctx := context.Background()

	status, err := vault.Upsert(ctx, model.OKX, model.Credential{
		APIKey:     "abcdefghijklmnop",
		APISecret:  "super-secret",
		Passphrase: "pass",
		Testnet:    true,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if status.APIKeyMasked == nil || *status.APIKeyMasked != "abcd***mnop" {
		t.Fatalf("masked key = %v, want abcd***mnop", status.APIKeyMasked)
	}
	if !status.Configured || !status.HasPassphrase || !status.Testnet {
		t.Fatalf("status = %+v", status)
	}

	// The stored row must not contain the plaintext.
	row := store.creds[model.OKX]
	if row.APIKeyEnc == "abcdefghijklmnop" || row.APISecretEnc == "super-secret" {
		t.Fatalf("credential stored unencrypted")
	}

	all, err := vault.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(all) != len(model.SupportedExchanges()) {
		t.Fatalf("status rows = %d, want one per venue", len(all))
	}
	configured := 0
	for _, st := range all {
		if st.Configured {
			configured++
			if st.Exchange != model.OKX {
				t.Fatalf("unexpected configured venue %s", st.Exchange)
			}
		}
	}
	if configured != 1 {
		t.Fatalf("configured = %d, want 1", configured)
	}
}

func TestCredentialResolveRoundTrip(t *testing.T) {
	store := newFakeStore()
	vault := newVault(t, store, "unit test master key")
	ctx := context.Background()

	if _, err := vault.Upsert(ctx, model.Bybit, model.Credential{
		APIKey:          "key-1234",
		APISecret:       "secret-1234",
		PortfolioMargin: true,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cred, err := vault.Resolve(ctx, model.Bybit)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cred.APIKey != "key-1234" || cred.APISecret != "secret-1234" {
		t.Fatalf("resolved credential does not round-trip: %+v", cred)
	}
	if cred.Passphrase != "" || !cred.PortfolioMargin {
		t.Fatalf("credential flags = %+v", cred)
	}

	if _, err := vault.Resolve(ctx, model.GateIO); !fault.Is(err, fault.KindAuth) {
		t.Fatalf("missing credential should be an auth fault, got %v", err)
	}
}

func TestCredentialWrongMasterKey(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	if _, err := newVault(t, store, "original key").Upsert(ctx, model.Binance, model.Credential{
		APIKey:    "abcdefghijklmnop",
		APISecret: "secret",
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// A vault with a rotated key still sees the row but cannot open it.
	rotated := newVault(t, store, "rotated key")

	all, err := rotated.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	for _, st := range all {
		if st.Exchange != model.Binance {
			continue
		}
		if !st.Configured {
			t.Fatalf("row should still report configured")
		}
		if st.APIKeyMasked != nil {
			t.Fatalf("undecryptable row must not expose a masked key, got %q", *st.APIKeyMasked)
		}
	}

	if _, err := rotated.Resolve(ctx, model.Binance); !fault.Is(err, fault.KindAuth) {
		t.Fatalf("resolve with wrong key should be an auth fault, got %v", err)
	}
}

func TestCredentialVaultDisabled(t *testing.T) {
	store := newFakeStore()
	vault := NewCredentialService(store, nil)
	ctx := context.Background()

	if vault.Enabled() {
		t.Fatalf("nil encryptor must disable the vault")
	}
	if _, err := vault.Upsert(ctx, model.OKX, model.Credential{APIKey: "k", APISecret: "s"}); !fault.Is(err, fault.KindValidation) {
		t.Fatalf("upsert on disabled vault = %v, want validation", err)
	}
	if _, err := vault.Resolve(ctx, model.OKX); !fault.Is(err, fault.KindValidation) {
		t.Fatalf("resolve on disabled vault = %v, want validation", err)
	}

	// Status still answers, with every venue unconfigured.
	all, err := vault.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	for _, st := range all {
		if st.Configured {
			t.Fatalf("disabled vault reported %s configured", st.Exchange)
		}
	}
}

func TestCredentialDelete(t *testing.T) {
	store := newFakeStore()
	vault := newVault(t, store, "unit test master key")
	ctx := context.Background()

	if _, err := vault.Upsert(ctx, model.Bitget, model.Credential{APIKey: "key", APISecret: "secret"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if deleted, err := vault.Delete(ctx, model.Bitget); err != nil || !deleted {
		t.Fatalf("Delete = %v %v, want true", deleted, err)
	}
	if deleted, err := vault.Delete(ctx, model.Bitget); err != nil || deleted {
		t.Fatalf("second Delete = %v %v, want false", deleted, err)
	}
}
