package export

import (
	"bytes"
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

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *storage.DB) {
	t.Helper()
	line := func(i int, a, b, pool, poolType, fn string) string {
		return fmt.Sprintf("[%d] [%s]-[%s] %s %s %s() => (1)", i, a, b, pool, poolType, fn)
	}
	result := graph.NewBuilder(graph.WithLogger(logging.Discard())).BuildLines([]string{
		line(0, tokenA, tokenB, pool1, "UniswapV2", "getReserves"),
		line(1, tokenA, tokenB, pool1, "UniswapV2", "getReserves"),
		line(2, tokenB, tokenC, pool2, "UniswapV3", "slot0"),
	})
	_, err := db.Persist(context.Background(), result, "trace-analyzed.txt", time.Now())
	require.NoError(t, err)
}

func TestExport(t *testing.T) {
	db := openDB(t)
	seed(t, db)

	var buf bytes.Buffer
	require.NoError(t, NewExporter(db).Export(&buf, DefaultExportOptions()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Trace 交易图谱\n"))
	assert.Contains(t, out, "> 节点: 5 (token 3, pool 2) | 边: 4")
	assert.Contains(t, out, "> 来源: trace-analyzed.txt")
	assert.Contains(t, out, "| UniswapV2 | 2 |")
	assert.Contains(t, out, "| slot0 | 1 |")
	assert.Contains(t, out, "| "+tokenA+"-"+tokenB+" | 2 |")
	assert.Contains(t, out, "## 各协议池子数")
	assert.Contains(t, out, "| "+tokenB+" | 2 | low |")
	assert.Contains(t, out, "```mermaid\ngraph LR\n")
	assert.Contains(t, out, "n0 ---|getReserves| n1")
}

func TestExport_NoMermaidAndTopPairs(t *testing.T) {
	db := openDB(t)
	seed(t, db)

	opts := DefaultExportOptions()
	opts.IncludeMermaid = false
	opts.TopPairs = 1
	opts.Title = "Report"

	var buf bytes.Buffer
	require.NoError(t, NewExporter(db).Export(&buf, opts))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Report\n"))
	assert.NotContains(t, out, "mermaid")
	assert.Contains(t, out, "_仅显示前 1 / 2 项_")
	assert.NotContains(t, out, "| "+tokenB+"-"+tokenC+" |")
}

func TestExport_EmptyDatabase(t *testing.T) {
	db := openDB(t)

	var buf bytes.Buffer
	require.NoError(t, NewExporter(db).Export(&buf, DefaultExportOptions()))
	out := buf.String()

	assert.Contains(t, out, "> 节点: 0 (token 0, pool 0) | 边: 0")
	assert.NotContains(t, out, "> 来源:")
	assert.Contains(t, out, "_无记录_")
}

func TestWriteMermaid_Truncates(t *testing.T) {
	db := openDB(t)
	seed(t, db)

	var buf bytes.Buffer
	require.NoError(t, NewExporter(db).WriteMermaid(&buf, 1))
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "---|"))
	assert.Contains(t, out, "%% 已截断: 显示 1 / 4 条边")
	assert.Contains(t, out, `n0(("0xAAAA…AAAA"))`)
	assert.Contains(t, out, `n1["0x1111…1111<br/>UniswapV2"]`)
}

func TestWriteMermaid_DistinctIDsForSimilarSymbols(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.UpsertPool(ctx, pool1, "UniswapV2"))
	for _, token := range []string{"USDC.e", "USDC_e", "0xAB", "AB"} {
		require.NoError(t, db.UpsertToken(ctx, token))
		require.NoError(t, db.UpsertEdge(ctx, graph.Edge{Token: token, Pool: pool1, Function: "slot0", Result: "1"}, now))
	}

	var buf bytes.Buffer
	require.NoError(t, NewExporter(db).WriteMermaid(&buf, 0))
	out := buf.String()

	// four tokens and one pool, each declared once under its own ID
	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, strings.Count(out, fmt.Sprintf("    n%d(", i))+strings.Count(out, fmt.Sprintf("    n%d[", i)), "n%d", i)
	}
	assert.NotContains(t, out, "    n5")
	assert.Equal(t, 4, strings.Count(out, "---|slot0|"))
}

func TestNodeIDs(t *testing.T) {
	ids := make(nodeIDs)

	id, fresh := ids.get("USDC.e")
	assert.Equal(t, "n0", id)
	assert.True(t, fresh)

	id, fresh = ids.get("USDC_e")
	assert.Equal(t, "n1", id)
	assert.True(t, fresh)

	id, fresh = ids.get("USDC.e")
	assert.Equal(t, "n0", id)
	assert.False(t, fresh)
}
