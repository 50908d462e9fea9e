package cost

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"octotrack/internal/octopus"
)

func reading(start string, kwh string) octopus.ConsumptionReading {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		panic(err)
	}
	return octopus.ConsumptionReading{
		IntervalStart: t,
		IntervalEnd:   t.Add(30 * time.Minute),
		KWh:           decimal.RequireFromString(kwh),
	}
}

func period(from, to string, incVAT string) octopus.RatePeriod {
	p := octopus.RatePeriod{
		ValidFrom:   mustTime(from),
		ValueIncVAT: decimal.RequireFromString(incVAT),
	}
	if to != "" {
		t := mustTime(to)
		p.ValidTo = &t
	}
	return p
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestComputeMidDayRateChange(t *testing.T) {
	readings := []octopus.ConsumptionReading{
		reading("2024-06-01T11:30:00Z", "2"),
		reading("2024-06-01T12:00:00Z", "2"),
	}
	unit := []octopus.RatePeriod{
		period("2024-06-01T00:00:00Z", "2024-06-01T12:00:00Z", "25"),
		period("2024-06-01T12:00:00Z", "", "12.5"),
	}
	standing := []octopus.RatePeriod{
		period("2024-01-01T00:00:00Z", "", "47.85"),
	}

	lines, err := Compute(readings, unit, standing, GroupDay)
	if err != nil {
		t.Fatalf("Compute should not fail: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected single day line, got %d", len(lines))
	}

	line := lines[0]
	if line.Period != "2024-06-01" {
		t.Fatalf("wrong period key: %s", line.Period)
	}
	// 2 kWh * 25p + 2 kWh * 12.5p = 75p usage.
	if !line.UsageCost.Equal(decimal.RequireFromString("75")) {
		t.Fatalf("wrong usage cost: %s", line.UsageCost)
	}
	if !line.StandingCost.Equal(decimal.RequireFromString("47.85")) {
		t.Fatalf("wrong standing cost: %s", line.StandingCost)
	}
	if !line.Total.Equal(decimal.RequireFromString("122.85")) {
		t.Fatalf("wrong total: %s", line.Total)
	}
	if line.Readings != 2 {
		t.Fatalf("wrong reading count: %d", line.Readings)
	}
}

func TestComputeOneStandingChargePerDay(t *testing.T) {
	var readings []octopus.ConsumptionReading
	for hour := 0; hour < 24; hour++ {
		for _, min := range []int{0, 30} {
			start := time.Date(2024, 6, 1, hour, min, 0, 0, time.UTC)
			readings = append(readings, octopus.ConsumptionReading{
				IntervalStart: start,
				IntervalEnd:   start.Add(30 * time.Minute),
				KWh:           decimal.RequireFromString("0.1"),
			})
		}
	}
	unit := []octopus.RatePeriod{period("2024-01-01T00:00:00Z", "", "20")}
	standing := []octopus.RatePeriod{period("2024-01-01T00:00:00Z", "", "50")}

	lines, err := Compute(readings, unit, standing, GroupDay)
	if err != nil {
		t.Fatalf("Compute should not fail: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if !lines[0].StandingCost.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("standing charge applied more than once: %s", lines[0].StandingCost)
	}
}

func TestComputeGroupingPreservesTotals(t *testing.T) {
	var readings []octopus.ConsumptionReading
	for day := 1; day <= 10; day++ {
		start := time.Date(2024, 6, day, 8, 0, 0, 0, time.UTC)
		readings = append(readings, octopus.ConsumptionReading{
			IntervalStart: start,
			IntervalEnd:   start.Add(30 * time.Minute),
			KWh:           decimal.NewFromInt(int64(day)).Div(decimal.NewFromInt(3)),
		})
	}
	unit := []octopus.RatePeriod{period("2024-01-01T00:00:00Z", "", "21.37")}
	standing := []octopus.RatePeriod{period("2024-01-01T00:00:00Z", "", "47.85")}

	sumOf := func(group Group) decimal.Decimal {
		lines, err := Compute(readings, unit, standing, group)
		if err != nil {
			t.Fatalf("Compute(%s) should not fail: %v", group, err)
		}
		total := decimal.Zero
		for _, l := range lines {
			total = total.Add(l.Total)
		}
		return total
	}

	ungrouped := sumOf(GroupNone)
	for _, group := range []Group{GroupDay, GroupWeek, GroupMonth} {
		if got := sumOf(group); !got.Equal(ungrouped) {
			t.Fatalf("grouping by %s changed the total: %s vs %s", group, got, ungrouped)
		}
	}
}

func TestComputeMissingRateCoverage(t *testing.T) {
	readings := []octopus.ConsumptionReading{reading("2024-06-01T08:00:00Z", "1")}
	unit := []octopus.RatePeriod{period("2024-06-02T00:00:00Z", "", "20")}
	standing := []octopus.RatePeriod{period("2024-01-01T00:00:00Z", "", "50")}

	_, err := Compute(readings, unit, standing, GroupDay)
	if err == nil {
		t.Fatal("uncovered interval must fail, not price as zero")
	}
	var cov *RateCoverageError
	if !errors.As(err, &cov) {
		t.Fatalf("expected RateCoverageError, got %v", err)
	}
	if cov.Kind != "unit" {
		t.Fatalf("wrong kind: %s", cov.Kind)
	}
}

func TestComputeOverlappingRatesRejected(t *testing.T) {
	readings := []octopus.ConsumptionReading{reading("2024-06-01T08:00:00Z", "1")}
	unit := []octopus.RatePeriod{
		period("2024-06-01T00:00:00Z", "2024-06-01T12:00:00Z", "20"),
		period("2024-06-01T06:00:00Z", "", "25"),
	}
	standing := []octopus.RatePeriod{period("2024-01-01T00:00:00Z", "", "50")}

	_, err := Compute(readings, unit, standing, GroupDay)
	var cov *RateCoverageError
	if !errors.As(err, &cov) {
		t.Fatalf("expected RateCoverageError for overlap, got %v", err)
	}
	if cov.Matches != 2 {
		t.Fatalf("wrong match count: %d", cov.Matches)
	}
}

func TestParseGroup(t *testing.T) {
	if g, err := ParseGroup(""); err != nil || g != GroupDay {
		t.Fatalf("empty group should default to day: %v %v", g, err)
	}
	if _, err := ParseGroup("fortnight"); err == nil {
		t.Fatal("unknown group should fail")
	}
}

func TestPeriodKeyISOWeek(t *testing.T) {
	// 2024-12-30 falls in ISO week 1 of 2025.
	if got := PeriodKey(GroupWeek, mustTime("2024-12-30T10:00:00Z")); got != "2025-W01" {
		t.Fatalf("wrong ISO week key: %s", got)
	}
	if got := PeriodKey(GroupMonth, mustTime("2024-06-15T10:00:00Z")); got != "2024-06" {
		t.Fatalf("wrong month key: %s", got)
	}
}
