package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shiroyk/runjs/api"
	"github.com/spf13/cobra"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the api server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := appFrom(cmd.Context())
		if err != nil {
			return err
		}

		opt := a.config.Api
		opt.Logger = a.logger
		opt.Cache = a.cache
		opt.CacheTimeout = a.config.Cache.Timeout
		if opt.Backend == "" {
			opt.Backend = a.config.Backend
		}
		if serveAddress != "" {
			opt.Address = serveAddress
		}

		e := api.Server(opt, a.registry)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdown); err != nil {
				a.logger.Error("shutdown failed", "error", err)
			}
		}()

		a.logger.Info("api server started", "address", opt.Address, "backends", a.registry.Names())
		return api.Start(e, opt)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address, the configured address by default")
	rootCmd.AddCommand(serveCmd)
}
