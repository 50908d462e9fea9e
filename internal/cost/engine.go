// Package cost joins half-hourly consumption against tariff rate periods
// and per-day standing charges. All arithmetic is exact decimal; rounding
// to whole pence happens at presentation, never per interval.
package cost

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"octotrack/internal/octopus"
)

// Group selects the aggregation granularity.
type Group string

const (
	GroupNone  Group = "none"
	GroupDay   Group = "day"
	GroupWeek  Group = "week"
	GroupMonth Group = "month"
)

// ParseGroup validates a user-supplied grouping.
func ParseGroup(s string) (Group, error) {
	switch Group(s) {
	case GroupNone, GroupDay, GroupWeek, GroupMonth:
		return Group(s), nil
	case "":
		return GroupDay, nil
	}
	return "", fmt.Errorf("unknown group %q (want day, week, month, or none)", s)
}

// RateCoverageError is a data-integrity fault: an interval matched zero or
// more than one rate period. Costs are never fabricated around it.
type RateCoverageError struct {
	Kind    string
	At      time.Time
	Matches int
}

func (e *RateCoverageError) Error() string {
	return fmt.Sprintf("no single %s rate covering %s (%d matches)", e.Kind, e.At.UTC().Format(time.RFC3339), e.Matches)
}

// Line is one aggregated cost row. Amounts are pence, exact.
type Line struct {
	Period       string          `json:"period"`
	TotalKWh     decimal.Decimal `json:"total_kwh"`
	Readings     int             `json:"readings"`
	UsageCost    decimal.Decimal `json:"usage_cost_pence"`
	StandingCost decimal.Decimal `json:"standing_cost_pence"`
	Total        decimal.Decimal `json:"total_pence"`
}

// Compute prices every reading against the unit rate active at its own
// interval start, then adds exactly one standing charge per calendar day
// touched by the readings, and aggregates by group.
func Compute(readings []octopus.ConsumptionReading, unitRates, standingRates []octopus.RatePeriod, group Group) ([]Line, error) {
	unitIdx, err := newRateIndex("unit", unitRates)
	if err != nil {
		return nil, err
	}
	standingIdx, err := newRateIndex("standing", standingRates)
	if err != nil {
		return nil, err
	}

	lines := make(map[string]*Line)
	chargedDays := make(map[string]bool)
	order := make([]string, 0)

	for _, r := range readings {
		rate, err := unitIdx.lookup(r.IntervalStart)
		if err != nil {
			return nil, err
		}

		key := PeriodKey(group, r.IntervalStart)
		line, ok := lines[key]
		if !ok {
			line = &Line{Period: key}
			lines[key] = line
			order = append(order, key)
		}
		line.TotalKWh = line.TotalKWh.Add(r.KWh)
		line.Readings++
		line.UsageCost = line.UsageCost.Add(r.KWh.Mul(rate.ValueIncVAT))

		day := r.IntervalStart.UTC().Truncate(24 * time.Hour)
		dayKey := day.Format(time.DateOnly)
		if !chargedDays[dayKey] {
			chargedDays[dayKey] = true
			charge, err := standingIdx.lookup(day)
			if err != nil {
				return nil, err
			}
			line.StandingCost = line.StandingCost.Add(charge.ValueIncVAT)
		}
	}

	sort.Strings(order)
	result := make([]Line, 0, len(order))
	for _, key := range order {
		line := lines[key]
		line.Total = line.UsageCost.Add(line.StandingCost)
		result = append(result, *line)
	}
	return result, nil
}

// PeriodKey maps a timestamp to its aggregation bucket label.
func PeriodKey(group Group, t time.Time) string {
	t = t.UTC()
	switch group {
	case GroupDay:
		return t.Format(time.DateOnly)
	case GroupWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case GroupMonth:
		return t.Format("2006-01")
	default:
		return "total"
	}
}

// rateIndex answers point-in-time lookups over sorted, non-overlapping
// rate periods.
type rateIndex struct {
	kind    string
	periods []octopus.RatePeriod
}

func newRateIndex(kind string, periods []octopus.RatePeriod) (*rateIndex, error) {
	sorted := make([]octopus.RatePeriod, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ValidFrom.Before(sorted[j].ValidFrom)
	})

	for i := 0; i < len(sorted)-1; i++ {
		next := sorted[i+1].ValidFrom
		if sorted[i].ValidTo == nil || sorted[i].ValidTo.After(next) {
			return nil, &RateCoverageError{Kind: kind, At: next, Matches: 2}
		}
	}

	return &rateIndex{kind: kind, periods: sorted}, nil
}

func (idx *rateIndex) lookup(t time.Time) (octopus.RatePeriod, error) {
	// First period starting after t; the candidate is the one before it.
	i := sort.Search(len(idx.periods), func(i int) bool {
		return idx.periods[i].ValidFrom.After(t)
	})
	if i == 0 {
		return octopus.RatePeriod{}, &RateCoverageError{Kind: idx.kind, At: t}
	}

	candidate := idx.periods[i-1]
	if !candidate.Covers(t) {
		return octopus.RatePeriod{}, &RateCoverageError{Kind: idx.kind, At: t}
	}
	return candidate, nil
}
