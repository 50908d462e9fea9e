package cli

import (
	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram command bot (long-running)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Bot(cmd.Context())
	},
}
