// Package config loads tgraph settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then an
// optional .env file, then TGRAPH_* environment variables. Command line flags
// are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix prefixes every environment override
const EnvPrefix = "TGRAPH_"

// Config holds all tgraph configuration
type Config struct {
	DBPath        string   `yaml:"db_path"`
	AllowedTokens []string `yaml:"allowed_tokens"`
	AllowListFile string   `yaml:"allow_list_file"`

	Log    LogConfig    `yaml:"log"`
	Web    WebConfig    `yaml:"web"`
	Watch  WatchConfig  `yaml:"watch"`
	Export ExportConfig `yaml:"export"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type ExportConfig struct {
	MaxEdges int `yaml:"max_edges"` // Mermaid 图最多渲染的边数
	TopPairs int `yaml:"top_pairs"` // 报告中 token 对排行的条数
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DBPath: ".tgraph.db",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Web:    WebConfig{Port: 8080},
		Watch:  WatchConfig{DebounceMs: 500},
		Export: ExportConfig{MaxEdges: 200, TopPairs: 20},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory and TGRAPH_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// A missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DBPath = getEnv("DB", c.DBPath)
	c.AllowedTokens = getEnvAsSlice("TOKENS", c.AllowedTokens, ",")
	c.AllowListFile = getEnv("TOKENS_FILE", c.AllowListFile)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Web.Port, err = getEnvAsInt("PORT", c.Web.Port); err != nil {
		return err
	}
	if c.Watch.DebounceMs, err = getEnvAsInt("DEBOUNCE_MS", c.Watch.DebounceMs); err != nil {
		return err
	}
	if c.Export.MaxEdges, err = getEnvAsInt("MAX_EDGES", c.Export.MaxEdges); err != nil {
		return err
	}
	if c.Export.TopPairs, err = getEnvAsInt("TOP_PAIRS", c.Export.TopPairs); err != nil {
		return err
	}
	return nil
}

// Validate checks that every field holds a usable value
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Web.Port)
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("%w: negative debounce", ErrInvalidConfig)
	}
	if c.Export.MaxEdges < 0 || c.Export.TopPairs < 0 {
		return fmt.Errorf("%w: export limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Tokens returns the configured allow list, merging AllowedTokens with the
// entries of AllowListFile when one is set. The reader is supplied by the
// caller so the file format stays in one place.
func (c *Config) Tokens(readFile func(path string) ([]string, error)) ([]string, error) {
	tokens := append([]string(nil), c.AllowedTokens...)
	if c.AllowListFile == "" {
		return tokens, nil
	}
	fromFile, err := readFile(c.AllowListFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow list %s: %w", c.AllowListFile, err)
	}
	return append(tokens, fromFile...), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s=%q is not a number", ErrInvalidConfig, EnvPrefix, key, v)
	}
	return n, nil
}

func getEnvAsSlice(key string, fallback []string, sep string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
