package gateio

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"fundarb/internal/domain/model"
	"fundarb/internal/infrastructure/exchange"
	ws "fundarb/internal/infrastructure/websocket"
)

const (
	wsURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"

	wsReadTimeout = 90 * time.Second
)

// TickerCache keeps the last funding values seen on the futures ticker
// stream. It is the final fallback when the REST listing is down.
type TickerCache struct {
	mu      sync.RWMutex
	entries map[string]model.FundingSnapshot
}

func NewTickerCache() *TickerCache {
	return &TickerCache{entries: make(map[string]model.FundingSnapshot)}
}

// Snapshots returns the cached values tagged as websocket data.
func (c *TickerCache) Snapshots() []model.FundingSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.FundingSnapshot, 0, len(c.entries))
	for _, snap := range c.entries {
		out = append(out, snap)
	}
	return out
}

type wsTickerEvent struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  []struct {
		Contract              string `json:"contract"`
		FundingRate           string `json:"funding_rate"`
		FundingRateIndicative string `json:"funding_rate_indicative"`
		MarkPrice             string `json:"mark_price"`
		Volume24hSettle       string `json:"volume_24h_settle"`
	} `json:"result"`
}

// Run connects and consumes the tickers channel until ctx ends, reconnecting
// with exponential backoff.
func (c *TickerCache) Run(ctx context.Context) {
	ws.RunLoop(ctx, "gateio tickers", ws.DefaultRetryConfig, c.consume)
}

func (c *TickerCache) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"time":    time.Now().Unix(),
		"channel": "futures.tickers",
		"event":   "subscribe",
		"payload": []string{"!all"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Info().Msg("gateio ticker stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var event wsTickerEvent
		if json.Unmarshal(raw, &event) != nil {
			continue
		}
		if event.Channel != "futures.tickers" || event.Event != "update" {
			continue
		}
		c.apply(event)
	}
}

func (c *TickerCache) apply(event wsTickerEvent) {
	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range event.Result {
		symbol := model.NormalizeUSDTSymbol(t.Contract)
		if symbol == "" {
			continue
		}
		rate := t.FundingRate
		if rate == "" {
			rate = t.FundingRateIndicative
		}
		snap := model.FundingSnapshot{
			Exchange:       model.GateIO,
			Symbol:         symbol,
			FundingRateRaw: exchange.ParseFloat(rate),
			MarkPrice:      exchange.ParseFloat(t.MarkPrice),
			Volume24hUSD:   exchange.ParseFloat(t.Volume24hSettle),
			SourceTag:      model.SourceWS,
			FetchedAt:      now,
		}
		// The stream has no interval field; keep whatever REST stored last
		// so derived rates survive the fallback.
		if prev, ok := c.entries[symbol]; ok && prev.FundingIntervalHours != nil {
			snap.FundingIntervalHours = prev.FundingIntervalHours
			snap.NextFundingTime = prev.NextFundingTime
			snap.MaxLeverage = prev.MaxLeverage
		}
		snap.DeriveRates()
		c.entries[symbol] = snap
	}
}

// Seed lets the REST path backfill interval and leverage context so later
// websocket updates keep full rows.
func (c *TickerCache) Seed(snaps []model.FundingSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, snap := range snaps {
		if snap.Exchange != model.GateIO {
			continue
		}
		if _, ok := c.entries[snap.Symbol]; !ok {
			c.entries[snap.Symbol] = snap
		} else {
			prev := c.entries[snap.Symbol]
			prev.FundingIntervalHours = snap.FundingIntervalHours
			prev.NextFundingTime = snap.NextFundingTime
			prev.MaxLeverage = snap.MaxLeverage
			c.entries[snap.Symbol] = prev
		}
	}
}
