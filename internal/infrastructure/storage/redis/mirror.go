// Package redis mirrors funding snapshots for out-of-process consumers
// (dashboards, alerting). Mirror failures never fail the request that
// produced the data.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fundarb/internal/application/port"
	"fundarb/internal/domain/model"
)

const defaultPrefix = "fundarb"

type Mirror struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":funding:latest"
	sourceStream string
}

func NewMirror(rdb *redis.Client, prefix string, ttl time.Duration) *Mirror {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Mirror{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":funding:latest",
		sourceStream: prefix + ":funding:sources",
	}
}

// MirrorSnapshots writes every snapshot into the latest-hash and appends one
// provenance record per refresh to the source stream.
func (m *Mirror) MirrorSnapshots(ctx context.Context, snapshots []model.FundingSnapshot, sources map[model.Exchange]model.SourceTag) error {
	if len(snapshots) == 0 {
		return nil
	}

	pipe := m.rdb.Pipeline()
	for _, snap := range snapshots {
		raw, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		// Hash: field = "binance:BTCUSDT" -> json
		field := fmt.Sprintf("%s:%s", snap.Exchange, snap.Symbol)
		pipe.HSet(ctx, m.keyLatest, field, string(raw))
	}
	if m.ttl > 0 {
		pipe.Expire(ctx, m.keyLatest, m.ttl)
	}

	values := map[string]any{"ts": time.Now().UnixMilli()}
	for exchange, tag := range sources {
		values[string(exchange)] = string(tag)
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: m.sourceStream,
		MaxLen: 1000,
		Approx: true,
		Values: values,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("redis mirror write failed")
		return err
	}
	return nil
}

var _ port.SnapshotMirror = (*Mirror)(nil)
