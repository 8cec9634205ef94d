package service

import (
	"testing"
	"time"

	"fundarb/internal/domain/model"
)

func marketSnap(exchange model.Exchange, symbol string, rate, intervalHours float64, next time.Time) model.FundingSnapshot {
	snap := model.FundingSnapshot{
		Exchange:             exchange,
		Symbol:               symbol,
		FundingRateRaw:       f(rate),
		FundingIntervalHours: f(intervalHours),
		NextFundingTime:      &next,
	}
	snap.DeriveRates()
	return snap
}

func TestScanOpportunitiesPairing(t *testing.T) {
	next := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	snapshots := []model.FundingSnapshot{
		marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, next),
		marketSnap(model.Bybit, "BTCUSDT", 0.0004, 8, next),
		marketSnap(model.OKX, "ETHUSDT", 0.0002, 8, next),
	}

	opportunities := ScanOpportunities(snapshots, 0)
	if len(opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1 (single-venue symbols cannot pair)", len(opportunities))
	}
	opp := opportunities[0]
	// The higher funding venue is shorted, so the spread is positive.
	if opp.LongExchange != model.Binance || opp.ShortExchange != model.Bybit {
		t.Fatalf("legs = %s/%s, want binance long bybit short", opp.LongExchange, opp.ShortExchange)
	}
	if opp.SpreadRate1yNominal <= 0 {
		t.Fatalf("spread = %v, want positive", opp.SpreadRate1yNominal)
	}
}

func TestScanOpportunitiesMinSpread(t *testing.T) {
	next := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	snapshots := []model.FundingSnapshot{
		marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, next),
		marketSnap(model.Bybit, "BTCUSDT", 0.00011, 8, next),
	}

	if got := ScanOpportunities(snapshots, 1.0); len(got) != 0 {
		t.Fatalf("tiny spread must not pass the threshold, got %+v", got)
	}
	if got := ScanOpportunities(snapshots, 0); len(got) != 1 {
		t.Fatalf("zero threshold keeps the pair, got %d", len(got))
	}
}

func TestScanOpportunitiesLeverage(t *testing.T) {
	next := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	long := marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, next)
	long.MaxLeverage = f(20)
	short := marketSnap(model.Bybit, "BTCUSDT", 0.0004, 8, next)
	short.MaxLeverage = f(50)

	opp := ScanOpportunities([]model.FundingSnapshot{long, short}, 0)[0]
	if opp.MaxUsableLeverage == nil || *opp.MaxUsableLeverage != 20 {
		t.Fatalf("usable leverage = %v, want min of legs", opp.MaxUsableLeverage)
	}
	if opp.LeveragedSpread == nil || *opp.LeveragedSpread != opp.SpreadRate1yNominal*20 {
		t.Fatalf("leveraged spread = %v", opp.LeveragedSpread)
	}

	// An unknown leg leverage clears both derived fields.
	short.MaxLeverage = nil
	opp = ScanOpportunities([]model.FundingSnapshot{long, short}, 0)[0]
	if opp.MaxUsableLeverage != nil || opp.LeveragedSpread != nil {
		t.Fatalf("unknown leverage must stay nil, got %v %v", opp.MaxUsableLeverage, opp.LeveragedSpread)
	}
}

func TestBuildBoardRowsRanking(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	next := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	snapshots := []model.FundingSnapshot{
		marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, next),
		marketSnap(model.Bybit, "BTCUSDT", 0.0004, 8, next),
		marketSnap(model.Binance, "ETHUSDT", -0.0002, 8, next),
		marketSnap(model.OKX, "ETHUSDT", 0.0006, 8, next),
	}

	rows, sortTag := BuildBoardRows(snapshots, BoardFilter{}, now)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if sortTag != BoardSortNextCycle {
		t.Fatalf("sort tag = %q", sortTag)
	}
	// ETH carries the wider spread and ranks first.
	if rows[0].Symbol != "ETHUSDT" || rows[1].Symbol != "BTCUSDT" {
		t.Fatalf("order = %s, %s", rows[0].Symbol, rows[1].Symbol)
	}
	if rows[0].NextCycleScore == nil || rows[1].NextCycleScore == nil {
		t.Fatalf("same-interval pairs must score")
	}
	if *rows[0].NextCycleScore < *rows[1].NextCycleScore {
		t.Fatalf("rows out of score order: %v < %v", *rows[0].NextCycleScore, *rows[1].NextCycleScore)
	}
	if rows[0].ID != "ETHUSDT-binance-okx" {
		t.Fatalf("row id = %q", rows[0].ID)
	}
}

func TestBuildBoardRowsFilters(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	next := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	snapshots := []model.FundingSnapshot{
		marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, next),
		marketSnap(model.Bybit, "BTCUSDT", 0.0004, 8, next),
		marketSnap(model.OKX, "BTCUSDT", 0.0002, 8, next),
	}

	rows, _ := BuildBoardRows(snapshots, BoardFilter{Symbol: "ethusdt"}, now)
	if len(rows) != 0 {
		t.Fatalf("symbol filter leaked %d rows", len(rows))
	}

	// One selected venue: either leg may match.
	rows, _ = BuildBoardRows(snapshots, BoardFilter{Exchanges: []model.Exchange{model.OKX}}, now)
	for _, row := range rows {
		if row.LongExchange != model.OKX && row.ShortExchange != model.OKX {
			t.Fatalf("row %s has no okx leg", row.ID)
		}
	}
	if len(rows) != 2 {
		t.Fatalf("single-venue filter rows = %d, want 2", len(rows))
	}

	// Two selected venues: both legs must be in the set.
	rows, _ = BuildBoardRows(snapshots, BoardFilter{Exchanges: []model.Exchange{model.Binance, model.Bybit}}, now)
	if len(rows) != 1 || rows[0].LongExchange != model.Binance || rows[0].ShortExchange != model.Bybit {
		t.Fatalf("pair filter rows = %+v", rows)
	}

	rows, _ = BuildBoardRows(snapshots, BoardFilter{Limit: 1}, now)
	if len(rows) != 1 {
		t.Fatalf("limit rows = %d, want 1", len(rows))
	}
}

func TestBuildBoardRowsIntervalMismatch(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	sync := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	snapshots := []model.FundingSnapshot{
		marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, sync),
		marketSnap(model.OKX, "BTCUSDT", 0.0004, 4, sync.Add(-4*time.Hour)),
	}

	rows, _ := BuildBoardRows(snapshots, BoardFilter{}, now)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if !row.IntervalMismatch {
		t.Fatalf("4h vs 8h must flag a mismatch")
	}
	if row.ShorterIntervalSide == nil || *row.ShorterIntervalSide != model.SideShort {
		t.Fatalf("shorter side = %v, want short", row.ShorterIntervalSide)
	}
	if row.ShortLeg.SettlementInterval != "4h" || row.LongLeg.SettlementInterval != "8h" {
		t.Fatalf("intervals = %s/%s", row.LongLeg.SettlementInterval, row.ShortLeg.SettlementInterval)
	}
	if row.SingleSideEventCount != 1 {
		t.Fatalf("single side events = %d, want 1", row.SingleSideEventCount)
	}
}

func TestBuildBoardRowsMinScoreFilter(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	next := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	snapshots := []model.FundingSnapshot{
		marketSnap(model.Binance, "BTCUSDT", 0.0001, 8, next),
		marketSnap(model.Bybit, "BTCUSDT", 0.0002, 8, next),
	}

	rows, _ := BuildBoardRows(snapshots, BoardFilter{MinNextCycleScore: 1.0}, now)
	if len(rows) != 0 {
		t.Fatalf("score filter leaked %d rows", len(rows))
	}
}
