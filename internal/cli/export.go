package cli

import (
	"github.com/spf13/cobra"

	"octotrack/internal/app"
)

var (
	exportOutput    string
	exportCSVPath   string
	exportPNGPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored data as JSON, CSV, and/or a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			OutputPath: exportOutput,
			CSVPath:    exportCSVPath,
			PNGPath:    exportPNGPath,
			MaxPoints:  exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "octotrack_export.json", "Path to write the full JSON dump")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write daily cost CSV")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write daily usage/cost PNG chart")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to chart (defaults to config)")
}
