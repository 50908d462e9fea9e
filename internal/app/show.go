package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"octotrack/internal/cost"
	"octotrack/internal/octopus"
	"octotrack/internal/storage"
)

// Usage prints stored consumption, raw or grouped by period.
func (a *App) Usage(ctx context.Context, opts UsageOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	from, to := a.window(opts.Days)

	if opts.Group == "" {
		readings, err := store.ListConsumption(ctx, from, to)
		if err != nil {
			return err
		}
		if len(readings) == 0 {
			fmt.Fprintln(os.Stdout, "No consumption data. Run 'sync' first.")
			return nil
		}
		if a.JSON {
			return writeJSON(readings)
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Interval start (UTC)\tInterval end\tkWh")
		for _, r := range readings {
			fmt.Fprintf(writer, "%s\t%s\t%s\n",
				r.IntervalStart.UTC().Format(time.RFC3339),
				r.IntervalEnd.UTC().Format(time.RFC3339),
				r.KWh.StringFixed(3))
		}
		return writer.Flush()
	}

	group, err := cost.ParseGroup(opts.Group)
	if err != nil {
		return err
	}

	var totals []groupedUsage
	if group == cost.GroupDay {
		// daily totals aggregate in SQL
		days, err := store.DailyTotals(ctx, from, to)
		if err != nil {
			return err
		}
		totals = dailyRows(days)
	} else {
		readings, err := store.ListConsumption(ctx, from, to)
		if err != nil {
			return err
		}
		totals = groupReadings(readings, group)
	}
	if len(totals) == 0 {
		fmt.Fprintln(os.Stdout, "No consumption data. Run 'sync' first.")
		return nil
	}
	if a.JSON {
		return writeJSON(totals)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Period\tTotal kWh\tReadings")
	for _, t := range totals {
		fmt.Fprintf(writer, "%s\t%s\t%d\n", t.Period, t.TotalKWh.StringFixed(3), t.Readings)
	}
	return writer.Flush()
}

// Rates prints stored unit rate periods overlapping the window.
func (a *App) Rates(ctx context.Context, opts UsageOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	from, to := a.window(opts.Days)
	rates, err := store.ListRates(ctx, storage.KindUnit, from, to)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		fmt.Fprintln(os.Stdout, "No rate data. Run 'sync' first.")
		return nil
	}
	if a.JSON {
		return writeJSON(rates)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Valid from (UTC)\tValid to\tExc VAT (p/kWh)\tInc VAT (p/kWh)")
	for _, r := range rates {
		validTo := "open"
		if r.ValidTo != nil {
			validTo = r.ValidTo.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			r.ValidFrom.UTC().Format(time.RFC3339),
			validTo,
			r.ValueExcVAT.StringFixed(4),
			r.ValueIncVAT.StringFixed(4))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	current, err := store.CurrentRate(ctx, storage.KindUnit)
	if err != nil {
		return err
	}
	if current != nil {
		fmt.Fprintf(os.Stdout, "\nCurrent unit rate: %sp/kWh (since %s)\n",
			current.ValueIncVAT.StringFixed(4), current.ValidFrom.UTC().Format(time.DateOnly))
	}
	if standing, err := store.CurrentRate(ctx, storage.KindStanding); err != nil {
		return err
	} else if standing != nil {
		fmt.Fprintf(os.Stdout, "Current standing charge: %sp/day\n", standing.ValueIncVAT.StringFixed(4))
	}
	return nil
}

// Cost prices the stored window: consumption x unit rate per interval plus
// one standing charge per day, aggregated by group.
func (a *App) Cost(ctx context.Context, opts CostOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	group, err := cost.ParseGroup(opts.Group)
	if err != nil {
		return err
	}

	from, to := a.window(opts.Days)
	lines, err := a.costLines(ctx, store, from, to, group)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Fprintln(os.Stdout, "No cost data. Run 'sync' first.")
		return nil
	}
	if a.JSON {
		return writeJSON(lines)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Period\tkWh\tUsage (p)\tStanding (p)\tTotal (p)\tTotal (£)")
	for _, line := range lines {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			line.Period,
			line.TotalKWh.StringFixed(2),
			line.UsageCost.StringFixed(2),
			line.StandingCost.StringFixed(2),
			line.Total.StringFixed(2),
			line.Total.Div(decimal.NewFromInt(100)).StringFixed(2))
	}
	return writer.Flush()
}

func (a *App) costLines(ctx context.Context, store *storage.Store, from, to time.Time, group cost.Group) ([]cost.Line, error) {
	readings, err := store.ListConsumption(ctx, from, to)
	if err != nil {
		return nil, err
	}
	unitRates, err := store.ListRates(ctx, storage.KindUnit, from, to)
	if err != nil {
		return nil, err
	}
	standing, err := store.ListRates(ctx, storage.KindStanding, from, to)
	if err != nil {
		return nil, err
	}
	return cost.Compute(readings, unitRates, standing, group)
}

func (a *App) window(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 7
	}
	now := time.Now().UTC()
	return now.Truncate(24 * time.Hour).AddDate(0, 0, -days), now
}

// groupedUsage is one aggregated consumption row.
type groupedUsage struct {
	Period   string          `json:"period"`
	TotalKWh decimal.Decimal `json:"total_kwh"`
	Readings int             `json:"readings"`
}

// dailyRows maps SQL daily totals onto display rows.
func dailyRows(days []storage.DailyUsage) []groupedUsage {
	rows := make([]groupedUsage, 0, len(days))
	for _, d := range days {
		rows = append(rows, groupedUsage{
			Period:   d.Day.UTC().Format(time.DateOnly),
			TotalKWh: d.TotalKWh,
			Readings: d.Readings,
		})
	}
	return rows
}

func groupReadings(readings []octopus.ConsumptionReading, group cost.Group) []groupedUsage {
	buckets := make(map[string]*groupedUsage)
	for _, r := range readings {
		key := cost.PeriodKey(group, r.IntervalStart)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &groupedUsage{Period: key}
			buckets[key] = bucket
		}
		bucket.TotalKWh = bucket.TotalKWh.Add(r.KWh)
		bucket.Readings++
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]groupedUsage, 0, len(keys))
	for _, key := range keys {
		result = append(result, *buckets[key])
	}
	return result
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
