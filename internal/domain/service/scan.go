package service

import (
	"sort"

	"fundarb/internal/domain/model"
)

// ScanOpportunities pairs each symbol across venues, making the higher raw
// funding side the short leg so the spread is never negative. Each unordered
// pair is emitted once; same-venue pairs never are.
func ScanOpportunities(snapshots []model.FundingSnapshot, minSpreadRate1yNominal float64) []model.Opportunity {
	groups := make(map[string][]model.FundingSnapshot)
	for _, snap := range snapshots {
		if snap.NominalRate1y == nil {
			continue
		}
		groups[snap.Symbol] = append(groups[snap.Symbol], snap)
	}

	var opportunities []model.Opportunity
	for symbol, items := range groups {
		if len(items) < 2 {
			continue
		}
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				left, right := items[i], items[j]
				if left.Exchange == right.Exchange {
					continue
				}

				long, short := left, right
				if *left.NominalRate1y > *right.NominalRate1y {
					long, short = right, left
				}

				spread := *short.NominalRate1y - *long.NominalRate1y
				if spread < minSpreadRate1yNominal {
					continue
				}

				opp := model.Opportunity{
					Symbol:               symbol,
					LongExchange:         long.Exchange,
					ShortExchange:        short.Exchange,
					LongNominalRate1y:    *long.NominalRate1y,
					ShortNominalRate1y:   *short.NominalRate1y,
					SpreadRate1yNominal:  spread,
					LongFundingRateRaw:   long.FundingRateRaw,
					ShortFundingRateRaw:  short.FundingRateRaw,
					LongNextFundingTime:  long.NextFundingTime,
					ShortNextFundingTime: short.NextFundingTime,
				}
				if lev := usableLeverage(long.MaxLeverage, short.MaxLeverage); lev != nil {
					opp.MaxUsableLeverage = lev
					leveraged := spread * *lev
					opp.LeveragedSpread = &leveraged
				}
				opportunities = append(opportunities, opp)
			}
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].SpreadRate1yNominal > opportunities[j].SpreadRate1yNominal
	})
	return opportunities
}

// usableLeverage is the min of the two legs, nil when either is unknown.
func usableLeverage(longLev, shortLev *float64) *float64 {
	if longLev == nil || shortLev == nil {
		return nil
	}
	lev := *longLev
	if *shortLev < lev {
		lev = *shortLev
	}
	if lev <= 0 {
		return nil
	}
	return &lev
}
