package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fundarb/internal/domain/model"
)

// BoardSortNextCycle is the sort tag reported in board meta when at least one
// row carries a next-cycle score.
const (
	BoardSortNextCycle = "next_cycle_score_desc_nulls_last"
	BoardSortFallback  = "next_cycle_score_desc_nulls_last_fallback_to_leveraged_spread_rate_1y_nominal_desc_then_spread_rate_1y_nominal_desc"
)

// BoardFilter narrows the ranked board output.
type BoardFilter struct {
	Limit                  int
	MinSpreadRate1yNominal float64
	MinNextCycleScore      float64
	Exchanges              []model.Exchange
	Symbol                 string
}

// BuildBoardRows joins snapshots into ranked opportunity rows. The returned
// sort tag describes the ordering applied.
func BuildBoardRows(snapshots []model.FundingSnapshot, filter BoardFilter, now time.Time) ([]model.OpportunityRow, string) {
	if filter.Limit <= 0 {
		filter.Limit = 500
	}
	symbolFilter := strings.ToUpper(strings.TrimSpace(filter.Symbol))
	exchangeFilter := make(map[model.Exchange]struct{}, len(filter.Exchanges))
	for _, ex := range filter.Exchanges {
		exchangeFilter[ex] = struct{}{}
	}

	index := make(map[model.Key]model.FundingSnapshot, len(snapshots))
	for _, snap := range snapshots {
		index[snap.Key()] = snap
	}

	opportunities := ScanOpportunities(snapshots, filter.MinSpreadRate1yNominal)

	var rows []model.OpportunityRow
	for _, opp := range opportunities {
		if symbolFilter != "" && opp.Symbol != symbolFilter {
			continue
		}
		if !matchesExchangeFilter(opp.LongExchange, opp.ShortExchange, exchangeFilter) {
			continue
		}
		long, okLong := index[model.Key{Exchange: opp.LongExchange, Symbol: opp.Symbol}]
		short, okShort := index[model.Key{Exchange: opp.ShortExchange, Symbol: opp.Symbol}]
		if !okLong || !okShort {
			continue
		}

		mismatch, shorterSide := resolveIntervalRelation(long.FundingIntervalHours, short.FundingIntervalHours)
		metrics := CalcNextCycleMetrics(long, short, opp.MaxUsableLeverage, now)

		row := model.OpportunityRow{
			ID:                           fmt.Sprintf("%s-%s-%s", opp.Symbol, opp.LongExchange, opp.ShortExchange),
			Symbol:                       opp.Symbol,
			LongExchange:                 opp.LongExchange,
			ShortExchange:                opp.ShortExchange,
			LongLeg:                      toBoardLeg(long),
			ShortLeg:                     toBoardLeg(short),
			IntervalMismatch:             mismatch,
			ShorterIntervalSide:          shorterSide,
			SpreadRate1h:                 spreadOf(short.Rate1h, long.Rate1h),
			SpreadRate8h:                 spreadOf(short.Rate8h, long.Rate8h),
			SpreadRate1yNominal:          opp.SpreadRate1yNominal,
			MaxUsableLeverage:            opp.MaxUsableLeverage,
			LeveragedSpreadRate1yNominal: opp.LeveragedSpread,
			NextSyncSettlementTime:       metrics.NextSyncSettlementTime,
			WindowHoursToSync:            metrics.WindowHoursToSync,
			NextCycleScore:               metrics.NextCycleScore,
			NextCycleScoreUnlevered:      metrics.NextCycleScoreUnlevered,
			SettlementEventsPreview:      metrics.Events,
			SingleSideEventCount:         metrics.SingleSideEventCount,
			SingleSideTotalRate:          metrics.SingleSideTotalRate,
			CalcStatus:                   metrics.CalcStatus,
		}

		if filter.MinNextCycleScore > 0 {
			if row.NextCycleScore == nil || *row.NextCycleScore < filter.MinNextCycleScore {
				continue
			}
		}
		rows = append(rows, row)
	}

	sortTag := applyBoardSort(rows)
	if len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, sortTag
}

// matchesExchangeFilter: with a single selected venue either leg may match;
// with several, both legs must be selected.
func matchesExchangeFilter(long, short model.Exchange, filter map[model.Exchange]struct{}) bool {
	if len(filter) == 0 {
		return true
	}
	_, longIn := filter[long]
	_, shortIn := filter[short]
	if len(filter) == 1 {
		return longIn || shortIn
	}
	return longIn && shortIn
}

func resolveIntervalRelation(longHours, shortHours *float64) (bool, *model.PairSide) {
	if longHours == nil || shortHours == nil || *longHours <= 0 || *shortHours <= 0 {
		return false, nil
	}
	diff := *longHours - *shortHours
	if math.Abs(diff) < 1e-9 {
		return false, nil
	}
	side := model.SideShort
	if diff < 0 {
		side = model.SideLong
	}
	return true, &side
}

func spreadOf(short, long *float64) *float64 {
	if short == nil || long == nil {
		return nil
	}
	spread := *short - *long
	return &spread
}

func toBoardLeg(snap model.FundingSnapshot) model.BoardLeg {
	return model.BoardLeg{
		Exchange:                snap.Exchange,
		FundingRateRaw:          snap.FundingRateRaw,
		Rate1h:                  snap.Rate1h,
		Rate8h:                  snap.Rate8h,
		NominalRate1y:           snap.NominalRate1y,
		NextFundingTime:         snap.NextFundingTime,
		MaxLeverage:             snap.MaxLeverage,
		LeveragedNominalRate1y:  snap.LeveragedNominalRate1y,
		OpenInterestUSD:         snap.OpenInterestUSD,
		Volume24hUSD:            snap.Volume24hUSD,
		SettlementInterval:      formatInterval(snap.FundingIntervalHours),
		SettlementIntervalHours: snap.FundingIntervalHours,
		SourceTag:               snap.SourceTag,
	}
}

func formatInterval(hours *float64) string {
	if hours == nil || *hours <= 0 {
		return "-"
	}
	if *hours == math.Trunc(*hours) {
		return fmt.Sprintf("%dh", int(*hours))
	}
	return fmt.Sprintf("%gh", *hours)
}

// applyBoardSort ranks by next-cycle score (nulls last), falling back to the
// leveraged spread then the unlevered spread.
func applyBoardSort(rows []model.OpportunityRow) string {
	hasScore := false
	for _, row := range rows {
		if row.NextCycleScore != nil {
			hasScore = true
			break
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return boardLess(rows[j], rows[i])
	})

	if hasScore {
		return BoardSortNextCycle
	}
	return BoardSortFallback
}

// boardLess orders a below b (ascending); callers invert for descending.
func boardLess(a, b model.OpportunityRow) bool {
	aScore, bScore := a.NextCycleScore, b.NextCycleScore
	switch {
	case aScore == nil && bScore != nil:
		return true
	case aScore != nil && bScore == nil:
		return false
	case aScore != nil && bScore != nil && *aScore != *bScore:
		return *aScore < *bScore
	}

	aLev, bLev := a.LeveragedSpreadRate1yNominal, b.LeveragedSpreadRate1yNominal
	switch {
	case aLev == nil && bLev != nil:
		return true
	case aLev != nil && bLev == nil:
		return false
	case aLev != nil && bLev != nil && *aLev != *bLev:
		return *aLev < *bLev
	}

	return a.SpreadRate1yNominal < b.SpreadRate1yNominal
}
