package cli

import (
	"github.com/spf13/cobra"

	"octotrack/internal/app"
)

var (
	costDays  int
	costGroup string
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Calculate costs from stored consumption and rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Cost(cmd.Context(), app.CostOptions{
			Days:  costDays,
			Group: costGroup,
		})
	},
}

func init() {
	costCmd.Flags().IntVar(&costDays, "days", 7, "Number of days to price")
	costCmd.Flags().StringVar(&costGroup, "group", "day", "Group by period (day, week, month, none)")
}
