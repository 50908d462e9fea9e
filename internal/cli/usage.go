package cli

import (
	"github.com/spf13/cobra"

	"octotrack/internal/app"
)

var (
	usageDays  int
	usageGroup string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show stored consumption data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Usage(cmd.Context(), app.UsageOptions{
			Days:  usageDays,
			Group: usageGroup,
		})
	},
}

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to show")
	usageCmd.Flags().StringVar(&usageGroup, "group", "", "Group by period (day, week, month)")
}
