package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"octotrack/internal/app"
)

var (
	syncDays int
	syncFrom string
	syncTo   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch consumption, rates, and standing charges into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SyncOptions{Days: syncDays}

		if syncFrom != "" {
			from, err := time.Parse(time.RFC3339, syncFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if syncTo != "" {
			to, err := time.Parse(time.RFC3339, syncTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
			return fmt.Errorf("--from must be before --to")
		}

		return getApp().Sync(cmd.Context(), opts)
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncDays, "days", 0, "Number of days to sync (default: ledger resume or config lookback)")
	syncCmd.Flags().StringVar(&syncFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	syncCmd.Flags().StringVar(&syncTo, "to", "", "End timestamp (RFC3339, exclusive)")
}
