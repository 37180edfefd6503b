package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiroyk/runjs/js"
	"github.com/shiroyk/runjs/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runjs", "config.yml")

	config, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
	assert.FileExists(t, path, "default configuration written")

	require.NoError(t, os.WriteFile(path, []byte(`
backend: node
api:
  token: secret
  timeout: 30s
cache:
  type: memory
node:
  command: /usr/local/bin/node
`), 0o600))

	config, err = ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, node.Name, config.Backend)
	assert.Equal(t, "secret", config.Api.Token)
	assert.Equal(t, 30*time.Second, config.Api.Timeout)
	assert.Equal(t, "memory", config.Cache.Type)
	assert.Equal(t, "/usr/local/bin/node", config.Node.Command)
	assert.Equal(t, node.DefaultArgs, config.Node.Args, "defaults kept")
	assert.Equal(t, js.DefaultProgramCacheSize, config.Embedded.ProgramCacheSize)

	require.NoError(t, os.WriteFile(path, []byte("backend: [node"), 0o600))
	_, err = ReadConfig(path)
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	t.Parallel()
	assert.Equal(t, *DefaultConfig(), FromContext(context.Background()))

	config := *DefaultConfig()
	config.Backend = node.Name
	assert.Equal(t, config, FromContext(NewContext(context.Background(), config)))
}
