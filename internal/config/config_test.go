package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/graph.db
allowed_tokens:
  - "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
log:
  level: debug
  format: json
web:
  port: 9000
export:
  max_edges: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/graph.db", cfg.DBPath)
	assert.Equal(t, []string{"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}, cfg.AllowedTokens)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, 50, cfg.Export.MaxEdges)
	// untouched keys keep defaults
	assert.Equal(t, 20, cfg.Export.TopPairs)
	assert.Equal(t, 500, cfg.Watch.DebounceMs)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "db_path: from-file.db\nweb:\n  port: 9000\n")
	t.Setenv("TGRAPH_DB", "from-env.db")
	t.Setenv("TGRAPH_PORT", "7000")
	t.Setenv("TGRAPH_TOKENS", "0xA, 0xB,,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, 7000, cfg.Web.Port)
	assert.Equal(t, []string{"0xA", "0xB"}, cfg.AllowedTokens)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "web: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("TGRAPH_PORT", "eighty")
		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log:\n  level: verbose\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
		{"port zero", func(c *Config) { c.Web.Port = 0 }},
		{"port too large", func(c *Config) { c.Web.Port = 70000 }},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMs = -1 }},
		{"negative max edges", func(c *Config) { c.Export.MaxEdges = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestTokens(t *testing.T) {
	cfg := Default()
	cfg.AllowedTokens = []string{"0xA"}

	tokens, err := cfg.Tokens(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA"}, tokens)

	cfg.AllowListFile = "tokens.txt"
	tokens, err = cfg.Tokens(func(path string) ([]string, error) {
		assert.Equal(t, "tokens.txt", path)
		return []string{"0xB"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA", "0xB"}, tokens)

	boom := errors.New("boom")
	_, err = cfg.Tokens(func(string) ([]string, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
