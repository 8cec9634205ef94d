package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"fundarb/internal/application/container"
	"fundarb/internal/application/usecase/monitor"
	domsvc "fundarb/internal/domain/service"
	"fundarb/internal/infrastructure/config"
	"fundarb/internal/infrastructure/crypto"
	"fundarb/internal/infrastructure/exchange/gateio"
	"fundarb/internal/infrastructure/factory"
	"fundarb/internal/infrastructure/logger"
	"fundarb/internal/infrastructure/storage"
	"fundarb/internal/interfaces/console"
	httpapi "fundarb/internal/interfaces/http"
)

const (
	exitInvalidConfig = 2
	exitDatabaseDown  = 3
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Str("config", *configPath).Msg("load config failed")
		os.Exit(exitInvalidConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("database unreachable")
		os.Exit(exitDatabaseDown)
	}

	mirror, err := storage.OpenMirror(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis mirror misconfigured, mirroring disabled")
		mirror = nil
	}

	var encryptor *crypto.Encryptor
	if cfg.CredentialVaultEnabled() {
		encryptor, err = crypto.NewEncryptor(cfg.Credentials.EncryptionKey)
		if err != nil {
			log.Error().Err(err).Msg("invalid credential encryption key")
			os.Exit(exitInvalidConfig)
		}
	} else {
		log.Warn().Msg("no encryption key configured, credential vault disabled")
	}

	gateWS := gateio.NewTickerCache()
	go gateWS.Run(ctx)

	registry := factory.NewVenueRegistry(
		time.Duration(cfg.Market.DataTimeoutSeconds)*time.Second, gateWS)

	c := container.New(cfg, store, mirror, encryptor, registry.All())
	defer c.Close()

	if cfg.App.MonitorEveryMin > 0 {
		mon := monitor.NewService(monitor.ServiceDeps{
			Board:    c.Board(),
			Filter:   domsvc.BoardFilter{Limit: 50},
			Interval: time.Duration(cfg.App.MonitorEveryMin) * time.Minute,
			Sink:     console.NewSink(),
		})
		go func() {
			if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("console monitor exited")
			}
		}()
	}

	api := httpapi.NewServer(cfg, c.Board(), c.Execution(), c.Credentials(), c.Records(), c.Templates())
	server := &http.Server{
		Addr:    cfg.App.ListenAddr,
		Handler: api.Handler(),
	}

	go func() {
		log.Info().Str("addr", cfg.App.ListenAddr).Msg("fundarb started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server exited")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
