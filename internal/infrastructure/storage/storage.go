// Package storage selects the persistence backend from configuration.
package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/infrastructure/config"
	"fundarb/internal/infrastructure/storage/postgres"
	rds "fundarb/internal/infrastructure/storage/redis"
	"fundarb/internal/infrastructure/storage/sqlite"
)

// Open builds the store named by the database URL: a postgres DSN selects
// pgx, anything else is treated as a sqlite file path.
func Open(ctx context.Context, cfg *config.Config) (port.Store, error) {
	if cfg.IsPostgres() {
		repo, err := postgres.New(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		log.Info().Msg("postgres store ready")
		return repo, nil
	}
	repo, err := sqlite.New(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.Database.URL).Msg("sqlite store ready")
	return repo, nil
}

// OpenMirror builds the optional redis snapshot mirror; an empty URL
// disables mirroring and returns nil.
func OpenMirror(ctx context.Context, cfg *config.Config) (port.SnapshotMirror, error) {
	url := cfg.Redis.URL
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// The mirror is best-effort; start without it rather than failing.
		log.Warn().Err(err).Msg("redis unreachable, mirroring disabled")
		_ = client.Close()
		return nil, nil
	}
	ttl := time.Duration(cfg.Market.CacheTTLSeconds+cfg.Market.StaleMaxAgeSeconds) * time.Second
	log.Info().Msg("redis snapshot mirror ready")
	return rds.NewMirror(client, "", ttl), nil
}
