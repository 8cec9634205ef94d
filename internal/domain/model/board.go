package model

import "time"

// CalcStatus reports whether next-cycle metrics could be computed for a row.
type CalcStatus string

const (
	CalcOK          CalcStatus = "ok"
	CalcMissingData CalcStatus = "missing_data"
	CalcNoSyncFound CalcStatus = "no_sync_found"
)

// SettlementKind classifies one funding instant in a preview window.
type SettlementKind string

const (
	SettlementHedged     SettlementKind = "hedged"
	SettlementSingleSide SettlementKind = "single_side"
	SettlementUnknown    SettlementKind = "unknown"
)

// PairSide names one leg of a paired position.
type PairSide string

const (
	SideLong  PairSide = "long"
	SideShort PairSide = "short"
)

// SettlementEvent is one funding instant inside the preview window.
// AmountRate is the signed net contribution to the paired position at that
// instant: short minus long when hedged, +short or -long when single sided.
type SettlementEvent struct {
	EventTime      time.Time      `json:"event_time"`
	Kind           SettlementKind `json:"kind"`
	Side           *PairSide      `json:"side"`
	AmountRate     float64        `json:"amount_rate"`
	LeveragedRate  float64        `json:"leveraged_rate"`
	HedgedRate     *float64       `json:"hedged_rate"`
	SingleSideRate *float64       `json:"single_side_rate"`
	LongRateRaw    *float64       `json:"long_rate_raw"`
	ShortRateRaw   *float64       `json:"short_rate_raw"`
	Summary        string         `json:"summary"`
}

// BoardLeg is the per-leg projection embedded in an opportunity row.
type BoardLeg struct {
	Exchange                Exchange   `json:"exchange"`
	FundingRateRaw          *float64   `json:"funding_rate_raw"`
	Rate1h                  *float64   `json:"rate_1h"`
	Rate8h                  *float64   `json:"rate_8h"`
	NominalRate1y           *float64   `json:"rate_1y_nominal"`
	NextFundingTime         *time.Time `json:"next_funding_time"`
	MaxLeverage             *float64   `json:"max_leverage"`
	LeveragedNominalRate1y  *float64   `json:"leveraged_nominal_rate_1y"`
	OpenInterestUSD         *float64   `json:"open_interest_usd"`
	Volume24hUSD            *float64   `json:"volume24h_usd"`
	SettlementInterval      string     `json:"settlement_interval"`
	SettlementIntervalHours *float64   `json:"settlement_interval_hours"`
	SourceTag               SourceTag  `json:"source_tag"`
}

// OpportunityRow is one ranked long/short pairing on the board.
type OpportunityRow struct {
	ID            string   `json:"id"`
	Symbol        string   `json:"symbol"`
	LongExchange  Exchange `json:"long_exchange"`
	ShortExchange Exchange `json:"short_exchange"`
	LongLeg       BoardLeg `json:"long_leg"`
	ShortLeg      BoardLeg `json:"short_leg"`

	IntervalMismatch    bool      `json:"interval_mismatch"`
	ShorterIntervalSide *PairSide `json:"shorter_interval_side"`

	SpreadRate1h                 *float64 `json:"spread_rate_1h"`
	SpreadRate8h                 *float64 `json:"spread_rate_8h"`
	SpreadRate1yNominal          float64  `json:"spread_rate_1y_nominal"`
	MaxUsableLeverage            *float64 `json:"max_usable_leverage"`
	LeveragedSpreadRate1yNominal *float64 `json:"leveraged_spread_rate_1y_nominal"`

	NextSyncSettlementTime   *time.Time        `json:"next_sync_settlement_time"`
	WindowHoursToSync        *float64          `json:"window_hours_to_sync"`
	NextCycleScore           *float64          `json:"next_cycle_score"`
	NextCycleScoreUnlevered  *float64          `json:"next_cycle_score_unlevered"`
	SettlementEventsPreview  []SettlementEvent `json:"settlement_events_preview"`
	SingleSideEventCount     int               `json:"single_side_event_count"`
	SingleSideTotalRate      *float64          `json:"single_side_total_rate"`
	CalcStatus               CalcStatus        `json:"calc_status"`
}

// Opportunity is the legacy flat pairing shape served by /api/opportunities.
type Opportunity struct {
	Symbol               string     `json:"symbol"`
	LongExchange         Exchange   `json:"long_exchange"`
	ShortExchange        Exchange   `json:"short_exchange"`
	LongNominalRate1y    float64    `json:"long_rate_1y_nominal"`
	ShortNominalRate1y   float64    `json:"short_rate_1y_nominal"`
	SpreadRate1yNominal  float64    `json:"spread_rate_1y_nominal"`
	MaxUsableLeverage    *float64   `json:"max_usable_leverage"`
	LeveragedSpread      *float64   `json:"leveraged_spread_rate_1y_nominal"`
	LongFundingRateRaw   *float64   `json:"long_funding_rate_raw"`
	ShortFundingRateRaw  *float64   `json:"short_funding_rate_raw"`
	LongNextFundingTime  *time.Time `json:"long_next_funding_time"`
	ShortNextFundingTime *time.Time `json:"short_next_funding_time"`
}
