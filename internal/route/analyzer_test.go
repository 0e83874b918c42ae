package route

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/logging"
	"github.com/zheng/tgraph/internal/storage"
)

const (
	tokenA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	tokenB = "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	tokenC = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	pool1  = "0x1111111111111111111111111111111111111111"
	pool2  = "0x2222222222222222222222222222222222222222"
)

func setupAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "route.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	line := func(i int, a, b, pool, poolType, fn string) string {
		return fmt.Sprintf("[%d] [%s]-[%s] %s %s %s() => (1, 2)", i, a, b, pool, poolType, fn)
	}
	result := graph.NewBuilder(graph.WithLogger(logging.Discard())).BuildLines([]string{
		line(0, tokenA, tokenB, pool1, "UniswapV2", "getReserves"),
		line(1, tokenB, tokenC, pool2, "UniswapV3", "slot0"),
	})
	_, err = db.Persist(context.Background(), result, "trace.txt", time.Now())
	require.NoError(t, err)
	return NewAnalyzer(db)
}

func TestAnalyze_Token(t *testing.T) {
	a := setupAnalyzer(t)

	report, err := a.Analyze(tokenA, 2)
	require.NoError(t, err)
	assert.Equal(t, tokenA, report.Target.ID)
	require.Len(t, report.Pools, 1)
	assert.Equal(t, pool1, report.Pools[0].ID)
	require.Len(t, report.Tokens, 2)
	assert.Equal(t, tokenB, report.Tokens[0].Node.ID)
	assert.Equal(t, tokenC, report.Tokens[1].Node.ID)
	assert.Equal(t, 2, report.Tokens[1].Depth)

	shallow, err := a.Analyze(tokenA, 1)
	require.NoError(t, err)
	assert.Len(t, shallow.Tokens, 1)
}

func TestAnalyze_Pool(t *testing.T) {
	a := setupAnalyzer(t)

	report, err := a.Analyze(pool2, 0)
	require.NoError(t, err)
	assert.Equal(t, graph.NodeKindPool, report.Target.Kind)
	assert.Empty(t, report.Pools)
	require.Len(t, report.Tokens, 2)
	assert.Equal(t, tokenB, report.Tokens[0].Node.ID)
	assert.Equal(t, tokenC, report.Tokens[1].Node.ID)
	assert.Len(t, report.Tree, 2)
}

func TestResolve(t *testing.T) {
	a := setupAnalyzer(t)

	t.Run("case-insensitive match", func(t *testing.T) {
		n, err := a.Resolve(strings.ToLower(tokenA))
		require.NoError(t, err)
		assert.Equal(t, tokenA, n.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := a.Resolve("0x9999")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := a.Resolve("Uniswap")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ambiguous")
	})
}

func TestReportFormatting(t *testing.T) {
	a := setupAnalyzer(t)
	report, err := a.Analyze(tokenA, 2)
	require.NoError(t, err)

	md := report.FormatMarkdown()
	assert.Contains(t, md, "## 邻域分析: "+tokenA)
	assert.Contains(t, md, "| "+pool1+" | UniswapV2 |")
	assert.Contains(t, md, "| "+tokenC+" | 2 |")

	tree := report.FormatTree()
	assert.Contains(t, tree, "📍 当前节点")
	assert.Contains(t, tree, "[UniswapV3]")
	assert.Contains(t, tree, "└──")

	assert.Equal(t, "Target: 0xAAAA…AAAA (token), Pools: 1, Reachable Tokens: 2, Depth: 2", report.Summary())
}
