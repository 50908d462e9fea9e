package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"octotrack/internal/service"
)

// Sync runs one fetch-store-alert cycle over the three remote resources.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	if err := a.Config.RequireMeter(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store)
	report, err := svc.RunSync(ctx, service.SyncOptions{
		From: opts.From,
		To:   opts.To,
		Days: opts.Days,
	})

	if !a.Quiet && report != nil {
		for _, result := range report.Results {
			fmt.Fprintf(os.Stdout, "  %s: %d records (%s .. %s)\n",
				result.Resource, result.Records,
				result.From.UTC().Format("2006-01-02"), result.To.UTC().Format("2006-01-02"))
		}
	}

	var partial *service.PartialSyncError
	if errors.As(err, &partial) {
		// failed resources retry from their old ledger entry next cycle
		a.Logger.Warn().Int("failed_resources", len(partial.Failed)).Msg("sync completed partially")
		return err
	}
	if err != nil {
		return err
	}

	if !a.Quiet {
		fmt.Fprintln(os.Stdout, "Sync complete.")
	}
	return nil
}

// Init discovers the account's meter identity and persists it to config.
func (a *App) Init(ctx context.Context) error {
	if a.Config.Octopus.APIKey == "" || a.Config.Octopus.Account == "" {
		return errors.New("octopus.api_key and octopus.account are required for init")
	}

	client := a.newClient()
	fmt.Fprintf(os.Stdout, "Fetching account details for %s...\n", a.Config.Octopus.Account)

	details, err := client.ElectricityDetails(ctx, a.Config.Octopus.Account)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "  MPAN:   %s\n", details.MPAN)
	fmt.Fprintf(os.Stdout, "  Serial: %s\n", details.Serial)
	fmt.Fprintf(os.Stdout, "  Tariff: %s\n", details.TariffCode)

	if err := a.Updater.SetMeterDetails(details.MPAN, details.Serial, details.TariffCode); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "\nMeter details written to config.")
	return nil
}
