// Package container wires the application services over their ports.
package container

import (
	"time"

	"fundarb/internal/application/port"
	"fundarb/internal/application/service"
	"fundarb/internal/infrastructure/cache"
	"fundarb/internal/infrastructure/config"
	"fundarb/internal/infrastructure/crypto"
)

// Container builds each service once, on first use.
type Container struct {
	cfg       *config.Config
	store     port.Store
	mirror    port.SnapshotMirror
	encryptor *crypto.Encryptor
	adapters  []port.VenueAdapter

	market      *service.MarketProvider
	board       *service.BoardService
	credentials *service.CredentialService
	execution   *service.ExecutionService
	records     *service.RecordService
	templates   *service.TemplateService
}

func New(cfg *config.Config, store port.Store, mirror port.SnapshotMirror, encryptor *crypto.Encryptor, adapters []port.VenueAdapter) *Container {
	return &Container{
		cfg:       cfg,
		store:     store,
		mirror:    mirror,
		encryptor: encryptor,
		adapters:  adapters,
	}
}

func (c *Container) Store() port.Store { return c.store }

func (c *Container) Market() *service.MarketProvider {
	if c.market == nil {
		snapCache := cache.New(
			time.Duration(c.cfg.Market.CacheTTLSeconds)*time.Second,
			time.Duration(c.cfg.Market.StaleMaxAgeSeconds)*time.Second,
		)
		c.market = service.NewMarketProvider(c.adapters, snapCache, c.mirror,
			time.Duration(c.cfg.Market.VenueFetchBudgetMS)*time.Millisecond,
			time.Duration(c.cfg.Market.TotalFetchBudgetMS)*time.Millisecond,
		)
		c.market.SetLeverageData(c.cfg.Market.EnableMarketLeverage)
	}
	return c.market
}

func (c *Container) Board() *service.BoardService {
	if c.board == nil {
		c.board = service.NewBoardService(c.Market())
	}
	return c.board
}

func (c *Container) Credentials() *service.CredentialService {
	if c.credentials == nil {
		c.credentials = service.NewCredentialService(c.store, c.encryptor)
	}
	return c.credentials
}

func (c *Container) Execution() *service.ExecutionService {
	if c.execution == nil {
		c.execution = service.NewExecutionService(c.Market(), c.Credentials(), c.store,
			time.Duration(c.cfg.Market.OrderTimeoutSeconds)*time.Second)
	}
	return c.execution
}

func (c *Container) Records() *service.RecordService {
	if c.records == nil {
		c.records = service.NewRecordService(c.store)
	}
	return c.records
}

func (c *Container) Templates() *service.TemplateService {
	if c.templates == nil {
		c.templates = service.NewTemplateService(c.store)
	}
	return c.templates
}

func (c *Container) Close() error {
	return c.store.Close()
}
