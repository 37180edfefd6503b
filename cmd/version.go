package cmd

import (
	"fmt"

	"github.com/shiroyk/runjs/lib"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%v\n runjs %v/%v\n", lib.Banner, lib.Version, lib.CommitSHA)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "backends",
		Short: "List the available backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range a.registry.Names() {
				b, _ := a.registry.Get(name)
				caps := b.Capabilities()
				marker := ""
				if name == a.config.Backend {
					marker = " (default)"
				}
				cmd.Println(fmt.Sprintf("%s%s\tprecompile=%t\tfrom-memory=%t", name, marker, caps.Precompile, caps.FromMemory))
			}
			return nil
		},
	})
}
