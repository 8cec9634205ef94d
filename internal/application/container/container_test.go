package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/config"
	"fundarb/internal/infrastructure/storage/sqlite"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Market.CacheTTLSeconds = 300
	cfg.Market.StaleMaxAgeSeconds = 120
	cfg.Market.VenueFetchBudgetMS = 4000
	cfg.Market.TotalFetchBudgetMS = 10000
	cfg.Market.OrderTimeoutSeconds = 10
	return cfg
}

func TestContainerWithSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "container.db")
	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}

	c := New(testConfig(), store, nil, nil, nil)
	defer c.Close()

	if c.Store() == nil {
		t.Errorf("expected store, got nil")
	}
	if c.Board() != c.Board() {
		t.Errorf("expected board service to be a singleton")
	}
	if c.Execution() != c.Execution() {
		t.Errorf("expected execution service to be a singleton")
	}
}

func TestContainerServiceWorkflow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "workflow.db")
	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}

	c := New(testConfig(), store, nil, nil, nil)
	defer c.Close()

	ctx := context.Background()
	created, err := c.Templates().Create(ctx, model.StrategyTemplate{
		Name:          "btc carry",
		Symbol:        "BTCUSDT",
		LongExchange:  model.Binance,
		ShortExchange: model.Bybit,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" || created.CreatedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("unexpected created template: %+v", created)
	}

	templates, err := c.Templates().List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(templates) != 1 {
		t.Errorf("expected 1 template, got %d", len(templates))
	}
}
