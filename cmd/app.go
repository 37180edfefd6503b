package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/shiroyk/runjs"
	"github.com/shiroyk/runjs/cache"
	"github.com/shiroyk/runjs/cache/bolt"
	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/js"
	"github.com/shiroyk/runjs/lib/config"
	"github.com/shiroyk/runjs/lib/logger"
	"github.com/shiroyk/runjs/node"
	"golang.org/x/exp/slog"
)

// backendFactory creates a backend from the configuration.
type backendFactory func(config.Config, *slog.Logger) engine.Backend

// backendFactories are the backends compiled into the binary.
var backendFactories = []backendFactory{
	func(cfg config.Config, log *slog.Logger) engine.Backend {
		opt := cfg.Embedded
		opt.Logger = log
		return js.New(opt)
	},
	func(cfg config.Config, log *slog.Logger) engine.Backend {
		opt := cfg.Node
		opt.Logger = log
		return node.New(opt)
	},
}

// app the dependencies of the commands
type app struct {
	config   config.Config
	logger   *slog.Logger
	registry *runjs.Registry
	cache    cache.Cache
}

type appKey struct{}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

func appFrom(ctx context.Context) (*app, error) {
	if a, ok := ctx.Value(appKey{}).(*app); ok {
		return a, nil
	}
	return nil, fmt.Errorf("runjs is not initialized")
}

// newApp builds the logger, the backends and the cache of the configuration.
func newApp(cfg config.Config, w io.Writer) (*app, error) {
	log, err := logger.New(w, cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, logger: log, registry: runjs.NewRegistry()}
	for _, factory := range backendFactories {
		a.registry.Register(factory(cfg, log))
	}

	switch cfg.Cache.Type {
	case "":
	case cache.Memory:
		a.cache = cache.NewMemory()
	case cache.Bolt:
		if a.cache, err = bolt.NewCache(cfg.Cache); err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
	return a, nil
}

// session returns a session on the backend, the configured one when empty.
func (a *app) session(backend string, opt runjs.Options) (*runjs.Session, error) {
	if backend == "" {
		backend = a.config.Backend
	}
	opt.Logger = a.logger
	opt.Cache = a.cache
	opt.CacheTimeout = a.config.Cache.Timeout
	return a.registry.New(backend, opt)
}

// Close releases the cache.
func (a *app) Close() error {
	if c, ok := a.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
