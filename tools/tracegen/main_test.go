package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/logging"
)

func TestGenerateProducesParsableTrace(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		OutputPath:    filepath.Join(dir, "trace.txt"),
		AllowListPath: filepath.Join(dir, "tokens.txt"),
		NumTokens:     8,
		NumPools:      12,
		NumLines:      300,
		NoiseRatio:    0.5,
		AllowTokens:   3,
		Seed:          42,
	}
	require.NoError(t, generate(cfg))

	result, err := graph.NewBuilder(graph.WithLogger(logging.Discard())).BuildFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.NumLines, result.Accepted)
	assert.Equal(t, cfg.NumLines, result.Stats.Snapshot().Total())
	assert.LessOrEqual(t, len(result.Graph.NodesByKind(graph.NodeKindPool)), cfg.NumPools)
	assert.LessOrEqual(t, len(result.Graph.NodesByKind(graph.NodeKindToken)), cfg.NumTokens)
	assert.Positive(t, result.NoMatch)

	f, err := os.Open(cfg.AllowListPath)
	require.NoError(t, err)
	defer f.Close()
	tokens, err := graph.LoadAllowList(f)
	require.NoError(t, err)
	assert.Len(t, tokens, 3)
}

func TestGenerateIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	read := func(name string) string {
		cfg := &Config{OutputPath: filepath.Join(dir, name), NumTokens: 5, NumPools: 5, NumLines: 50, NoiseRatio: 0.3, Seed: 7}
		require.NoError(t, generate(cfg))
		data, err := os.ReadFile(cfg.OutputPath)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, read("a.txt"), read("b.txt"))
}

func TestRandomAddress(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		addr := randomAddress(rng)
		assert.Len(t, addr, 42)
		assert.True(t, strings.HasPrefix(addr, "0x"))
	}
}
