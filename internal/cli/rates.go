package cli

import (
	"github.com/spf13/cobra"

	"octotrack/internal/app"
)

var ratesDays int

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show stored unit rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rates(cmd.Context(), app.UsageOptions{Days: ratesDays})
	},
}

func init() {
	ratesCmd.Flags().IntVar(&ratesDays, "days", 7, "Number of days to show")
}
