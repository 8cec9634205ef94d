package model

import (
	"strings"
	"time"
)

// Credential is the plaintext API credential for one venue. It only travels
// from the vault to the execution path, never into logs or responses.
type Credential struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase,omitempty"`
	Testnet    bool   `json:"testnet"`
	// PortfolioMargin marks a binance account on the papi margin tier; orders
	// and leverage calls route to different endpoints there.
	PortfolioMargin bool `json:"portfolio_margin,omitempty"`
}

// CredentialStatus is the masked view returned by the API.
type CredentialStatus struct {
	Exchange        Exchange   `json:"exchange"`
	Configured      bool       `json:"configured"`
	APIKeyMasked    *string    `json:"api_key_masked"`
	HasPassphrase   bool       `json:"has_passphrase"`
	Testnet         bool       `json:"testnet"`
	PortfolioMargin bool       `json:"portfolio_margin"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// MaskAPIKey keeps the first and last four characters of the key. Short keys
// expose at most two leading characters.
func MaskAPIKey(apiKey string) string {
	value := strings.TrimSpace(apiKey)
	if value == "" {
		return "-"
	}
	if len(value) <= 8 {
		return value[:2] + "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}
