package display

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/storage"
)

// ShortAddress abbreviates a hex address for terminal output.
// e.g., "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2" -> "0xC02a…6Cc2"
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// ShortPair abbreviates both halves of a "tokenA-tokenB" pair key
func ShortPair(key string) string {
	a, b, ok := strings.Cut(key, "-")
	if !ok {
		return ShortAddress(key)
	}
	return ShortAddress(a) + "-" + ShortAddress(b)
}

// NodeLabel renders a node as "0x1234…abcd" or "0x1234…abcd [UniswapV2]"
func NodeLabel(n *graph.Node) string {
	if n.Kind == graph.NodeKindPool && n.PoolType != "" {
		return fmt.Sprintf("%s [%s]", ShortAddress(n.ID), n.PoolType)
	}
	return ShortAddress(n.ID)
}

// CalcTreeMaxWidth calculates the maximum label width and depth for alignment in the tree.
func CalcTreeMaxWidth(tree []*storage.TreeNode, maxWidth *int, currentDepth int, maxDepth *int) {
	if currentDepth > *maxDepth {
		*maxDepth = currentDepth
	}
	for _, node := range tree {
		w := utf8.RuneCountInString(NodeLabel(node.Node))
		if w > *maxWidth {
			*maxWidth = w
		}
		if len(node.Children) > 0 {
			CalcTreeMaxWidth(node.Children, maxWidth, currentDepth+1, maxDepth)
		}
	}
}

// FormatTree renders a neighborhood tree with box-drawing characters.
// Each line carries the function last observed on the edge to its parent.
func FormatTree(tree []*storage.TreeNode, indent string, maxWidth int, maxDepth int, currentDepth int) string {
	var sb strings.Builder
	for i, node := range tree {
		isLast := i == len(tree)-1
		prefix := "├──"
		if isLast {
			prefix = "└──"
		}

		label := NodeLabel(node.Node)
		padding := maxWidth + (maxDepth-currentDepth)*4
		sb.WriteString(fmt.Sprintf("%s%s %-*s  %s\n", indent, prefix, padding, label, node.Function))

		if len(node.Children) > 0 {
			childIndent := indent + "│   "
			if isLast {
				childIndent = indent + "    "
			}
			sb.WriteString(FormatTree(node.Children, childIndent, maxWidth, maxDepth, currentDepth+1))
		}
	}
	return sb.String()
}

// RenderTree sizes and formats a whole tree
func RenderTree(tree []*storage.TreeNode) string {
	maxWidth, maxDepth := 0, 0
	CalcTreeMaxWidth(tree, &maxWidth, 0, &maxDepth)
	return FormatTree(tree, "", maxWidth, maxDepth, 0)
}
