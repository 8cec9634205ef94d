package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration. TOML supplies the base; FA_*
// environment variables override it.
type Config struct {
	App struct {
		ListenAddr  string `toml:"listen_addr"`
		CORSOrigins string `toml:"cors_origins"`
		// MonitorEveryMin enables the console board monitor when positive.
		MonitorEveryMin int `toml:"monitor_every_min"`
	} `toml:"app"`

	Database struct {
		// URL selects the backend: empty or a file path means sqlite, a
		// postgres:// DSN means pgx.
		URL string `toml:"url"`
	} `toml:"database"`

	Redis struct {
		URL string `toml:"url"`
	} `toml:"redis"`

	Market struct {
		CacheTTLSeconds      int  `toml:"cache_ttl_seconds"`
		StaleMaxAgeSeconds   int  `toml:"stale_max_age_seconds"`
		VenueFetchBudgetMS   int  `toml:"venue_fetch_budget_ms"`
		TotalFetchBudgetMS   int  `toml:"total_fetch_budget_ms"`
		DataTimeoutSeconds   int  `toml:"data_timeout_seconds"`
		OrderTimeoutSeconds  int  `toml:"order_timeout_seconds"`
		EnableMarketLeverage bool `toml:"enable_market_leverage"`
	} `toml:"market"`

	Credentials struct {
		EncryptionKey string `toml:"encryption_key"`
	} `toml:"credentials"`
}

// ErrInvalid marks configuration the process must refuse to start with.
var ErrInvalid = errors.New("invalid configuration")

// Load reads the optional TOML file, overlays FA_* environment variables
// (after a best-effort .env load) and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.ListenAddr) == "" {
		cfg.App.ListenAddr = ":8000"
	}
	if strings.TrimSpace(cfg.App.CORSOrigins) == "" {
		cfg.App.CORSOrigins = "http://localhost:5173,http://127.0.0.1:5173"
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		cfg.Database.URL = "funding_arbitrage.db"
	}
	if cfg.Market.CacheTTLSeconds <= 0 {
		cfg.Market.CacheTTLSeconds = 300
	}
	if cfg.Market.StaleMaxAgeSeconds <= 0 {
		cfg.Market.StaleMaxAgeSeconds = 120
	}
	if cfg.Market.VenueFetchBudgetMS <= 0 {
		cfg.Market.VenueFetchBudgetMS = 4000
	}
	if cfg.Market.TotalFetchBudgetMS <= 0 {
		cfg.Market.TotalFetchBudgetMS = 10000
	}
	if cfg.Market.DataTimeoutSeconds <= 0 {
		cfg.Market.DataTimeoutSeconds = 5
	}
	if cfg.Market.OrderTimeoutSeconds <= 0 {
		cfg.Market.OrderTimeoutSeconds = 10
	}
	cfg.Market.EnableMarketLeverage = true
}

func applyEnv(cfg *Config) {
	if v, ok := lookupEnv("FA_LISTEN_ADDR"); ok {
		cfg.App.ListenAddr = v
	}
	if v, ok := lookupEnv("FA_CORS_ORIGINS"); ok {
		cfg.App.CORSOrigins = v
	}
	if v, ok := lookupEnvInt("FA_MONITOR_EVERY_MIN"); ok {
		cfg.App.MonitorEveryMin = v
	}
	if v, ok := lookupEnv("FA_DATABASE_URL"); ok {
		cfg.Database.URL = v
	}
	if v, ok := lookupEnv("FA_REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := lookupEnv("FA_CREDENTIAL_ENCRYPTION_KEY"); ok {
		cfg.Credentials.EncryptionKey = v
	}
	if v, ok := lookupEnvInt("FA_MARKET_CACHE_TTL_SECONDS"); ok {
		cfg.Market.CacheTTLSeconds = v
	}
	if v, ok := lookupEnvInt("FA_STALE_MAX_AGE_SECONDS"); ok {
		cfg.Market.StaleMaxAgeSeconds = v
	}
	if v, ok := lookupEnvInt("FA_VENUE_FETCH_BUDGET_MS"); ok {
		cfg.Market.VenueFetchBudgetMS = v
	}
	if v, ok := lookupEnvInt("FA_TOTAL_FETCH_BUDGET_MS"); ok {
		cfg.Market.TotalFetchBudgetMS = v
	}
	if v, ok := lookupEnvBool("FA_ENABLE_CCXT_MARKET_LEVERAGE"); ok {
		cfg.Market.EnableMarketLeverage = v
	}
}

func validate(cfg *Config) error {
	if cfg.Market.CacheTTLSeconds <= 0 || cfg.Market.StaleMaxAgeSeconds < 0 {
		return ErrInvalid
	}
	if cfg.Market.VenueFetchBudgetMS <= 0 || cfg.Market.TotalFetchBudgetMS <= 0 {
		return ErrInvalid
	}
	if cfg.Market.VenueFetchBudgetMS > cfg.Market.TotalFetchBudgetMS {
		return ErrInvalid
	}
	return nil
}

// CORSOriginList splits the comma-separated origins setting.
func (c *Config) CORSOriginList() []string {
	var out []string
	for _, origin := range strings.Split(c.App.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// CredentialVaultEnabled reports whether encrypted credential storage can
// operate.
func (c *Config) CredentialVaultEnabled() bool {
	return strings.TrimSpace(c.Credentials.EncryptionKey) != ""
}

// IsPostgres reports whether the database URL selects the pgx backend.
func (c *Config) IsPostgres() bool {
	u := strings.ToLower(strings.TrimSpace(c.Database.URL))
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
