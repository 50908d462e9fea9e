package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var demandCmd = &cobra.Command{
	Use:   "demand",
	Short: "Check live demand once and send threshold alerts (safe for 1-min cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Demand(cmd.Context())
	},
}

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll live demand on an interval and send threshold alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if watchInterval > 0 {
			a.Config.Watch.Interval = watchInterval
		}
		return a.Watch(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Polling interval (default: config watch.interval)")
}
