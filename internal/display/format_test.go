package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/storage"
)

const (
	weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	pool = "0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"
)

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0xC02a…6Cc2", ShortAddress(weth))
	assert.Equal(t, "0x1234", ShortAddress("0x1234"))
	assert.Equal(t, "", ShortAddress(""))
}

func TestShortPair(t *testing.T) {
	assert.Equal(t, "0xC02a…6Cc2-0xA0b8…eB48", ShortPair(weth+"-"+usdc))
	assert.Equal(t, "nodash", ShortPair("nodash"))
}

func TestNodeLabel(t *testing.T) {
	assert.Equal(t, "0xC02a…6Cc2", NodeLabel(&graph.Node{ID: weth, Kind: graph.NodeKindToken}))
	assert.Equal(t, "0xB4e1…C9Dc [UniswapV2]", NodeLabel(&graph.Node{ID: pool, Kind: graph.NodeKindPool, PoolType: "UniswapV2"}))
	assert.Equal(t, "0xB4e1…C9Dc", NodeLabel(&graph.Node{ID: pool, Kind: graph.NodeKindPool}))
}

func TestRenderTree(t *testing.T) {
	tree := []*storage.TreeNode{
		{
			Node:     &graph.Node{ID: pool, Kind: graph.NodeKindPool, PoolType: "UniswapV2"},
			Function: "getReserves",
			Children: []*storage.TreeNode{
				{Node: &graph.Node{ID: usdc, Kind: graph.NodeKindToken}, Function: "getReserves"},
			},
		},
		{Node: &graph.Node{ID: weth, Kind: graph.NodeKindToken}, Function: "slot0"},
	}

	out := RenderTree(tree)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "├── 0xB4e1…C9Dc [UniswapV2]"))
	assert.True(t, strings.HasPrefix(lines[1], "│   └── 0xA0b8…eB48"))
	assert.True(t, strings.HasPrefix(lines[2], "└── 0xC02a…6Cc2"))
	for _, l := range lines {
		assert.True(t, strings.HasSuffix(l, "getReserves") || strings.HasSuffix(l, "slot0"), l)
	}
}

func TestRenderTree_Empty(t *testing.T) {
	assert.Empty(t, RenderTree(nil))
}
