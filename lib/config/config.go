// Package config the runjs configuration file
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/shiroyk/runjs/api"
	"github.com/shiroyk/runjs/cache"
	"github.com/shiroyk/runjs/cache/bolt"
	"github.com/shiroyk/runjs/js"
	"github.com/shiroyk/runjs/lib/logger"
	"github.com/shiroyk/runjs/lib/utils"
	"github.com/shiroyk/runjs/node"
	"gopkg.in/yaml.v3"
)

// DefaultPath the default configuration file
const DefaultPath = "~/.config/runjs/config.yml"

type configKey struct{}

// NewContext returns a context that contains the given Config.
func NewContext(ctx context.Context, config Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// FromContext returns the Config stored in ctx by NewContext, or the default
// Config if there is none.
func FromContext(ctx context.Context) Config {
	if config, ok := ctx.Value(configKey{}).(Config); ok {
		return config
	}
	return *DefaultConfig()
}

// Config The runjs configuration
type Config struct {
	// Backend is the default backend name
	Backend string `yaml:"backend"`

	// Log
	Log logger.Options `yaml:"log"`

	// Api
	Api api.Options `yaml:"api"`

	// Cache
	Cache cache.Options `yaml:"cache"`

	// Embedded the goja backend
	Embedded js.Options `yaml:"embedded"`

	// Node the node backend
	Node node.Options `yaml:"node"`
}

// DefaultConfig The default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: js.Name,
		Log: logger.Options{
			Level:  "info",
			Format: logger.Console,
		},
		Api: api.Options{
			Timeout: api.DefaultTimeout,
			Address: api.DefaultAddress,
		},
		Cache: cache.Options{
			Path: bolt.DefaultPath,
		},
		Embedded: js.Options{
			ProgramCacheSize: js.DefaultProgramCacheSize,
			MaxArrayLength:   js.DefaultMaxArrayLength,
		},
		Node: node.Options{
			Command: node.DefaultCommand,
			Args:    node.DefaultArgs,
		},
	}
}

// WriteConfig writes the configuration to the file, creating its directory.
func WriteConfig(path string, config *Config) error {
	file, err := utils.ExpandPath(path)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
		return err
	}
	bytes, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(file, bytes, 0644)
}

// ReadConfig read configuration from the file.
// If the configuration file is not existing then create it with default configuration.
// Fields missing from the file keep their default values.
func ReadConfig(path string) (*Config, error) {
	file, err := utils.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	config := DefaultConfig()
	bytes, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return config, WriteConfig(file, config)
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(bytes, config); err != nil {
		return nil, err
	}
	return config, nil
}
