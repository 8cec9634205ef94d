package binance

import (
	"context"
	"time"

	"fundarb/internal/domain/fault"
	"fundarb/internal/domain/model"
)

// Leverage brackets live on a public bapi endpoint, not on fapi; it is the
// only unsigned source for per-symbol max leverage.
const (
	bracketsURL      = "https://www.binance.com/bapi/futures/v1/friendly/future/common/brackets"
	leverageCacheTTL = time.Hour
)

type riskBracket struct {
	MaxOpenPosLeverage float64 `json:"maxOpenPosLeverage"`
}

type bracketRow struct {
	Symbol       string        `json:"symbol"`
	MaxLeverage  float64       `json:"maxLeverage"`
	RiskBrackets []riskBracket `json:"riskBrackets"`
}

type bracketsResponse struct {
	Code string `json:"code"`
	Data struct {
		Brackets []bracketRow `json:"brackets"`
	} `json:"data"`
}

// parseBrackets maps each USDT perpetual to the widest leverage its risk
// brackets allow, falling back to the row-level maxLeverage. Non-USDT
// contracts are dropped.
func parseBrackets(resp bracketsResponse) map[string]float64 {
	out := map[string]float64{}
	for _, row := range resp.Data.Brackets {
		symbol := model.NormalizeUSDTSymbol(row.Symbol)
		if symbol == "" {
			continue
		}
		var lev float64
		for _, b := range row.RiskBrackets {
			if b.MaxOpenPosLeverage > lev {
				lev = b.MaxOpenPosLeverage
			}
		}
		if lev <= 0 {
			lev = row.MaxLeverage
		}
		if lev > 0 {
			out[symbol] = lev
		}
	}
	return out
}

// leverageMap serves the bracket data from a one-hour cache; every funding
// refresh would otherwise hammer an endpoint that changes rarely.
func (a *Adapter) leverageMap(ctx context.Context) (map[string]float64, error) {
	a.levMu.Lock()
	defer a.levMu.Unlock()
	if a.levMap != nil && time.Since(a.levFetchedAt) < leverageCacheTTL {
		return a.levMap, nil
	}

	var resp bracketsResponse
	if err := a.http.GetJSON(ctx, bracketsURL, nil, &resp); err != nil {
		return nil, fault.Wrap(fault.KindOf(err), err, "binance leverage brackets")
	}
	parsed := parseBrackets(resp)
	if len(parsed) == 0 {
		return nil, fault.New(fault.KindTransient, "binance leverage brackets empty")
	}
	a.levMap = parsed
	a.levFetchedAt = time.Now()
	return parsed, nil
}
