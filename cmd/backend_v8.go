//go:build v8

package cmd

import (
	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/lib/config"
	"github.com/shiroyk/runjs/v8"
	"golang.org/x/exp/slog"
)

func init() {
	backendFactories = append(backendFactories, func(_ config.Config, log *slog.Logger) engine.Backend {
		return v8.New(v8.Options{Logger: log})
	})
}
