package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "runjs",
	Short:         "runjs runs JavaScript functions with host values on pluggable engines.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if a, err := appFrom(cmd.Context()); err == nil {
			return a.Close()
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}
