package service

import (
	"fmt"
	"math"
	"time"

	"fundarb/internal/domain/model"
)

const (
	// Two funding instants within this tolerance settle as one hedged event.
	settlementMatchTolerance = 60 * time.Second
	// Preview bounds: at most this many events, never further out than the
	// horizon from now.
	maxPreviewEvents = 96
	previewHorizon   = 7 * 24 * time.Hour
)

// NextCycleMetrics is the settlement preview plus the derived ranking score
// for one long/short pairing.
type NextCycleMetrics struct {
	CalcStatus              model.CalcStatus
	NextSyncSettlementTime  *time.Time
	WindowHoursToSync       *float64
	NextCycleScore          *float64
	NextCycleScoreUnlevered *float64
	Events                  []model.SettlementEvent
	SingleSideEventCount    int
	SingleSideTotalRate     *float64
}

func missingDataMetrics() NextCycleMetrics {
	return NextCycleMetrics{CalcStatus: model.CalcMissingData}
}

func noSyncMetrics() NextCycleMetrics {
	return NextCycleMetrics{CalcStatus: model.CalcNoSyncFound}
}

// CalcNextCycleMetrics builds the merged settlement preview for the window
// ending at the first instant where both legs settle together again.
func CalcNextCycleMetrics(long, short model.FundingSnapshot, maxUsableLeverage *float64, now time.Time) NextCycleMetrics {
	if long.NextFundingTime == nil || short.NextFundingTime == nil ||
		long.FundingIntervalHours == nil || short.FundingIntervalHours == nil ||
		*long.FundingIntervalHours <= 0 || *short.FundingIntervalHours <= 0 ||
		long.FundingRateRaw == nil || short.FundingRateRaw == nil {
		return missingDataMetrics()
	}

	longInterval := hoursToDuration(*long.FundingIntervalHours)
	shortInterval := hoursToDuration(*short.FundingIntervalHours)
	longFirst := rollForward(*long.NextFundingTime, longInterval, now)
	shortFirst := rollForward(*short.NextFundingTime, shortInterval, now)

	syncTime, ok := findNextSync(longFirst, shortFirst, longInterval, shortInterval, now.Add(previewHorizon))
	if !ok {
		return noSyncMetrics()
	}

	leverage := 1.0
	if maxUsableLeverage != nil && *maxUsableLeverage > 0 {
		leverage = *maxUsableLeverage
	}

	events := buildPreview(previewInput{
		longFirst:     longFirst,
		shortFirst:    shortFirst,
		longInterval:  longInterval,
		shortInterval: shortInterval,
		syncTime:      syncTime,
		longRateRaw:   *long.FundingRateRaw,
		shortRateRaw:  *short.FundingRateRaw,
		leverage:      leverage,
	})

	var unlevered, singleSideTotal float64
	singleSideCount := 0
	for _, ev := range events {
		unlevered += ev.AmountRate
		if ev.Kind == model.SettlementSingleSide {
			singleSideCount++
			singleSideTotal += ev.AmountRate
		}
	}
	score := unlevered * leverage
	windowHours := math.Max(0, syncTime.Sub(now).Hours())

	return NextCycleMetrics{
		CalcStatus:              model.CalcOK,
		NextSyncSettlementTime:  &syncTime,
		WindowHoursToSync:       &windowHours,
		NextCycleScore:          &score,
		NextCycleScoreUnlevered: &unlevered,
		Events:                  events,
		SingleSideEventCount:    singleSideCount,
		SingleSideTotalRate:     &singleSideTotal,
	}
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

func sameInstant(left, right time.Time) bool {
	diff := left.Sub(right)
	if diff < 0 {
		diff = -diff
	}
	return diff <= settlementMatchTolerance
}

// rollForward skips funding instants that already passed, resuming from the
// next future one.
func rollForward(next time.Time, interval time.Duration, now time.Time) time.Time {
	candidate := next
	if candidate.After(now) || sameInstant(candidate, now) {
		return candidate
	}
	if elapsed := now.Sub(candidate); elapsed > interval {
		skipped := int64(elapsed / interval)
		candidate = candidate.Add(interval * time.Duration(skipped))
	}
	for candidate.Before(now) && !sameInstant(candidate, now) {
		candidate = candidate.Add(interval)
	}
	return candidate
}

// findNextSync walks both cursors forward until they land within tolerance,
// bounded by the horizon.
func findNextSync(longFirst, shortFirst time.Time, longInterval, shortInterval time.Duration, horizon time.Time) (time.Time, bool) {
	longCursor, shortCursor := longFirst, shortFirst
	for i := 0; i < 4*maxPreviewEvents; i++ {
		if sameInstant(longCursor, shortCursor) {
			sync := longCursor
			if shortCursor.After(sync) {
				sync = shortCursor
			}
			if sync.After(horizon) {
				return time.Time{}, false
			}
			return sync, true
		}
		if longCursor.After(horizon) && shortCursor.After(horizon) {
			return time.Time{}, false
		}
		if longCursor.Before(shortCursor) {
			longCursor = longCursor.Add(longInterval)
		} else {
			shortCursor = shortCursor.Add(shortInterval)
		}
	}
	return time.Time{}, false
}

type previewInput struct {
	longFirst     time.Time
	shortFirst    time.Time
	longInterval  time.Duration
	shortInterval time.Duration
	syncTime      time.Time
	longRateRaw   float64
	shortRateRaw  float64
	leverage      float64
}

func buildPreview(in previewInput) []model.SettlementEvent {
	var events []model.SettlementEvent
	longCursor, shortCursor := in.longFirst, in.shortFirst

	for len(events) < maxPreviewEvents {
		if sameInstant(longCursor, shortCursor) {
			eventTime := longCursor
			if shortCursor.After(eventTime) {
				eventTime = shortCursor
			}
			if eventTime.After(in.syncTime) && !sameInstant(eventTime, in.syncTime) {
				break
			}
			rate := in.shortRateRaw - in.longRateRaw
			events = append(events, hedgedEvent(eventTime, rate, in))
			longCursor = longCursor.Add(in.longInterval)
			shortCursor = shortCursor.Add(in.shortInterval)
			if sameInstant(eventTime, in.syncTime) {
				break
			}
			continue
		}

		if longCursor.Before(shortCursor) {
			if longCursor.After(in.syncTime) && !sameInstant(longCursor, in.syncTime) {
				break
			}
			events = append(events, singleSideEvent(longCursor, model.SideLong, in))
			longCursor = longCursor.Add(in.longInterval)
			continue
		}

		if shortCursor.After(in.syncTime) && !sameInstant(shortCursor, in.syncTime) {
			break
		}
		events = append(events, singleSideEvent(shortCursor, model.SideShort, in))
		shortCursor = shortCursor.Add(in.shortInterval)
	}

	return events
}

func hedgedEvent(at time.Time, rate float64, in previewInput) model.SettlementEvent {
	longRaw, shortRaw := in.longRateRaw, in.shortRateRaw
	hedged := rate
	return model.SettlementEvent{
		EventTime:     at,
		Kind:          model.SettlementHedged,
		AmountRate:    rate,
		LeveragedRate: rate * in.leverage,
		HedgedRate:    &hedged,
		LongRateRaw:   &longRaw,
		ShortRateRaw:  &shortRaw,
		Summary:       fmt.Sprintf("both legs settle: %+.6f", rate),
	}
}

func singleSideEvent(at time.Time, side model.PairSide, in previewInput) model.SettlementEvent {
	ev := model.SettlementEvent{
		EventTime: at,
		Kind:      model.SettlementSingleSide,
		Side:      &side,
	}
	if side == model.SideLong {
		rate := -in.longRateRaw
		longRaw := in.longRateRaw
		ev.AmountRate = rate
		ev.SingleSideRate = &rate
		ev.LongRateRaw = &longRaw
		ev.Summary = fmt.Sprintf("long leg only settles: %+.6f", rate)
	} else {
		rate := in.shortRateRaw
		shortRaw := in.shortRateRaw
		ev.AmountRate = rate
		ev.SingleSideRate = &rate
		ev.ShortRateRaw = &shortRaw
		ev.Summary = fmt.Sprintf("short leg only settles: %+.6f", rate)
	}
	ev.LeveragedRate = ev.AmountRate * in.leverage
	return ev
}
