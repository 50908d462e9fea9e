package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"octotrack/internal/cost"
	"octotrack/internal/octopus"
	"octotrack/internal/storage"
)

func TestDailyRows(t *testing.T) {
	days := []storage.DailyUsage{
		{Day: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), TotalKWh: decimal.RequireFromString("12.345"), Readings: 48},
		{Day: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), TotalKWh: decimal.RequireFromString("8.1"), Readings: 46},
	}

	rows := dailyRows(days)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Period != "2024-06-01" || rows[1].Period != "2024-06-02" {
		t.Fatalf("wrong period keys: %s, %s", rows[0].Period, rows[1].Period)
	}
	if !rows[0].TotalKWh.Equal(decimal.RequireFromString("12.345")) {
		t.Fatalf("wrong total: %s", rows[0].TotalKWh)
	}
	if rows[1].Readings != 46 {
		t.Fatalf("wrong reading count: %d", rows[1].Readings)
	}
}

func TestGroupReadingsByWeek(t *testing.T) {
	var readings []octopus.ConsumptionReading
	// Mon 2024-06-03 through Sun 2024-06-09 is ISO week 23; Mon 2024-06-10
	// starts week 24.
	for day := 3; day <= 10; day++ {
		start := time.Date(2024, 6, day, 8, 0, 0, 0, time.UTC)
		readings = append(readings, octopus.ConsumptionReading{
			IntervalStart: start,
			IntervalEnd:   start.Add(30 * time.Minute),
			KWh:           decimal.NewFromInt(1),
		})
	}

	rows := groupReadings(readings, cost.GroupWeek)
	if len(rows) != 2 {
		t.Fatalf("expected 2 week buckets, got %d", len(rows))
	}
	if rows[0].Period != "2024-W23" || rows[1].Period != "2024-W24" {
		t.Fatalf("wrong week keys: %s, %s", rows[0].Period, rows[1].Period)
	}
	if !rows[0].TotalKWh.Equal(decimal.NewFromInt(7)) || rows[0].Readings != 7 {
		t.Fatalf("wrong week 23 totals: %s kWh, %d readings", rows[0].TotalKWh, rows[0].Readings)
	}
}
