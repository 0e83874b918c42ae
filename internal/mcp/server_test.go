package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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

func seededDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	line := func(i int, a, b, pool, poolType, fn string) string {
		return fmt.Sprintf("[%d] [%s]-[%s] %s %s %s() => (1)", i, a, b, pool, poolType, fn)
	}
	result := graph.NewBuilder(graph.WithLogger(logging.Discard())).BuildLines([]string{
		line(0, tokenA, tokenB, pool1, "UniswapV2", "getReserves"),
		line(1, tokenB, tokenC, pool2, "UniswapV3", "slot0"),
	})
	_, err = db.Persist(context.Background(), result, "trace.txt", time.Now())
	require.NoError(t, err)
	return db
}

// session feeds requests to a server and returns one decoded response per
// request that expects an answer
func session(t *testing.T, db *storage.DB, requests ...string) []Response {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer

	s := NewServer(db, WithStreams(in, &out), WithLogger(logging.Discard()))
	require.NoError(t, s.Run())

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func callTool(name string, args map[string]any) string {
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: args})
	req, _ := json.Marshal(Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	return string(req)
}

// toolText extracts the text content and error flag of a tools/call response
func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Content, 1)
	return result.Content[0].Text, result.IsError
}

func TestProtocol(t *testing.T) {
	db := seededDB(t)

	responses := session(t, db,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":"oops"}`,
	)
	require.Len(t, responses, 5)

	init := responses[0].Result.(map[string]any)
	assert.Equal(t, "2024-11-05", init["protocolVersion"])
	assert.Equal(t, "tgraph", init["serverInfo"].(map[string]any)["name"])

	tools := responses[1].Result.(map[string]any)["tools"].([]any)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"stats", "search", "pools", "neighbors", "mermaid"}, names)

	require.NotNil(t, responses[2].Error)
	assert.Equal(t, codeParseError, responses[2].Error.Code)
	require.NotNil(t, responses[3].Error)
	assert.Equal(t, codeMethodNotFound, responses[3].Error.Code)
	require.NotNil(t, responses[4].Error)
	assert.Equal(t, codeInvalidParams, responses[4].Error.Code)
}

func TestUnknownNotificationGetsNoResponse(t *testing.T) {
	db := seededDB(t)

	responses := session(t, db,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7}}`,
		`{"jsonrpc":"2.0","method":"notifications/progress"}`,
		`{"jsonrpc":"2.0","id":5,"method":"prompts/list"}`,
	)
	require.Len(t, responses, 1)
	assert.EqualValues(t, 5, responses[0].ID)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeMethodNotFound, responses[0].Error.Code)
}

func TestTools(t *testing.T) {
	db := seededDB(t)

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		contains []string
		isError  bool
	}{
		{
			name:     "stats all",
			tool:     "stats",
			contains: []string{"节点: 5 | 边: 4", "### protocol", "- UniswapV2: 1", "### token_pair"},
		},
		{
			name:     "stats one category",
			tool:     "stats",
			args:     map[string]any{"category": "function"},
			contains: []string{"- getReserves: 1", "- slot0: 1"},
		},
		{
			name:    "stats bad category",
			tool:    "stats",
			args:    map[string]any{"category": "gas"},
			isError: true,
		},
		{
			name:     "search",
			tool:     "search",
			args:     map[string]any{"pattern": "uniswapv3"},
			contains: []string{"找到 1 个匹配节点", "[pool] " + pool2 + " (UniswapV3)"},
		},
		{
			name:     "search miss",
			tool:     "search",
			args:     map[string]any{"pattern": "curve"},
			contains: []string{"未找到匹配 'curve' 的节点"},
		},
		{
			name:    "search without pattern",
			tool:    "search",
			isError: true,
		},
		{
			name:     "pools of token",
			tool:     "pools",
			args:     map[string]any{"address": tokenB},
			contains: []string{"(2 个)", pool1 + " (UniswapV2)", pool2 + " (UniswapV3)"},
		},
		{
			name:     "pools per protocol",
			tool:     "pools",
			contains: []string{"## 各协议池子数", "- UniswapV2: 1"},
		},
		{
			name:     "neighbors",
			tool:     "neighbors",
			args:     map[string]any{"address": tokenA, "depth": float64(2)},
			contains: []string{"## 邻域分析: " + tokenA, "| " + tokenC + " | 2 |"},
		},
		{
			name:    "neighbors unknown",
			tool:    "neighbors",
			args:    map[string]any{"address": "0x9999"},
			isError: true,
		},
		{
			name:     "mermaid",
			tool:     "mermaid",
			args:     map[string]any{"max_edges": float64(2)},
			contains: []string{"graph LR", "已截断: 显示 2 / 4 条边"},
		},
		{
			name:    "unknown tool",
			tool:    "upstream",
			isError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := session(t, db, callTool(tt.tool, tt.args))
			require.Len(t, responses, 1)

			text, isError := toolText(t, responses[0])
			assert.Equal(t, tt.isError, isError, text)
			for _, want := range tt.contains {
				assert.Contains(t, text, want)
			}
		})
	}
}
