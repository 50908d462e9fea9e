package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"octotrack/internal/app"
	"octotrack/internal/config"
	"octotrack/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	quietMode  bool
	jsonOutput bool
	appHandle  *app.App
)

var rootCmd = &cobra.Command{
	Use:   "octotrack",
	Short: "Track Octopus Energy usage, costs, and live demand",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, updater, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		if quietMode {
			logger = logging.NewQuietLogger(cfg.Logging)
		}

		appHandle = app.NewApp(cfg, updater, logger)
		appHandle.Quiet = quietMode
		appHandle.JSON = jsonOutput
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Suppress non-error output (cron-friendly)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(costCmd)
	rootCmd.AddCommand(demandCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
