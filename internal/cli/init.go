package cli

import (
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Discover meter details from the account and write them to config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Init(cmd.Context())
	},
}
