package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"octotrack/internal/cost"
)

// Export dumps the full stored dataset as JSON and optionally renders the
// daily cost series as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.OutputPath == "" && opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --output, --csv, or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.OutputPath != "" {
		dump, err := store.ExportAll(ctx)
		if err != nil {
			return err
		}
		if err := writeJSONFile(opts.OutputPath, dump); err != nil {
			return err
		}
		if !a.Quiet {
			fmt.Fprintf(os.Stdout, "Exported to %s\n", opts.OutputPath)
			fmt.Fprintf(os.Stdout, "  consumption:      %d records\n", len(dump.Consumption))
			fmt.Fprintf(os.Stdout, "  unit_rates:       %d records\n", len(dump.UnitRates))
			fmt.Fprintf(os.Stdout, "  standing_charges: %d records\n", len(dump.StandingCharges))
			fmt.Fprintf(os.Stdout, "  sync_ledger:      %d entries\n", len(dump.SyncLedger))
		}
	}

	if opts.CSVPath == "" && opts.PNGPath == "" {
		return nil
	}

	// daily series for the whole stored history
	to := time.Now().UTC()
	from := to.AddDate(-10, 0, 0)
	lines, err := a.costLines(ctx, store, from, to, cost.GroupDay)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		a.Logger.Info().Msg("no daily cost data to export")
		return nil
	}

	lines = downsampleLines(lines, opts.MaxPoints)
	a.Logger.Info().Int("points", len(lines)).Msg("exporting daily series")

	if opts.CSVPath != "" {
		if err := writeCostCSV(opts.CSVPath, lines); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeCostPNG(opts.PNGPath, lines); err != nil {
			return err
		}
	}
	return nil
}

func downsampleLines(lines []cost.Line, max int) []cost.Line {
	if max <= 0 || len(lines) <= max {
		return lines
	}

	result := make([]cost.Line, 0, max)
	step := float64(len(lines)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(lines) {
			idx = len(lines) - 1
		}
		result = append(result, lines[idx])
	}
	return result
}

func writeCostCSV(path string, lines []cost.Line) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"period", "total_kwh", "usage_cost_pence", "standing_cost_pence", "total_pence"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, line := range lines {
		record := []string{
			line.Period,
			line.TotalKWh.String(),
			line.UsageCost.StringFixed(2),
			line.StandingCost.StringFixed(2),
			line.Total.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeCostPNG(path string, lines []cost.Line) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(lines))
	kwh := make([]float64, 0, len(lines))
	pence := make([]float64, 0, len(lines))

	for _, line := range lines {
		day, err := time.Parse(time.DateOnly, line.Period)
		if err != nil {
			return fmt.Errorf("parse period %q: %w", line.Period, err)
		}
		x = append(x, day)
		kwh = append(kwh, line.TotalKWh.InexactFloat64())
		pence = append(pence, line.Total.InexactFloat64())
	}

	formatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Usage (kWh/day)",
			ValueFormatter: formatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cost (p/day)",
			ValueFormatter: formatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Usage kWh",
				XValues: x,
				YValues: kwh,
			},
			chart.TimeSeries{
				Name:    "Cost p",
				XValues: x,
				YValues: pence,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeJSONFile(path string, v any) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
