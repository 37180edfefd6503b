package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/shiroyk/runjs/lib/config"
	"github.com/shiroyk/runjs/lib/utils"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	configArg    string
	configGenArg string
	debugMode    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "runjs configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configGenArg != "" {
			return writeDiskConfig(configGenArg)
		}
		path, err := utils.ExpandPath(configArg)
		if err != nil {
			return err
		}
		cmd.Println(path)
		return nil
	},
}

func writeDiskConfig(path string) error {
	file, err := utils.ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err = os.Stat(file); !errors.Is(err, os.ErrNotExist) {
		return errors.New("configuration file is already exists")
	}
	return config.WriteConfig(file, config.DefaultConfig())
}

func init() {
	configCmd.Flags().StringVarP(&configGenArg, "gen", "g", "", "generate default configuration file")
	rootCmd.PersistentFlags().StringVar(&configArg, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "output debug log")
	rootCmd.AddCommand(configCmd)
}

// initConfig reads the configuration and puts the app built from it into
// the command context.
func initConfig(cmd *cobra.Command) error {
	cfg, err := config.ReadConfig(configArg)
	if err != nil {
		slog.Warn("error reading config file, using the default configuration", "error", err)
		cfg = config.DefaultConfig()
	}
	if debugMode {
		cfg.Log.Level = "debug"
	}
	a, err := newApp(*cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(withApp(config.NewContext(ctx, *cfg), a))
	return nil
}
