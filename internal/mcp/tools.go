package mcp

import (
	"fmt"
	"strings"

	"github.com/zheng/tgraph/internal/export"
	"github.com/zheng/tgraph/internal/route"
	"github.com/zheng/tgraph/internal/stats"
)

const defaultLimit = 50

func toolList() []Tool {
	return []Tool{
		{
			Name:        "stats",
			Description: "返回 trace 调用统计: 各协议、各函数、各 token 对的调用次数, 以及节点/边数量",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"category": {
						Type:        "string",
						Description: "只返回某一类计数, 不填则返回全部",
						Enum:        []string{"protocol", "function", "token_pair"},
					},
					"limit": {
						Type:        "number",
						Description: "每类最多返回的条数, 默认 50",
						Default:     defaultLimit,
					},
				},
			},
		},
		{
			Name:        "search",
			Description: "按地址片段或协议名搜索 token / pool 节点",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"pattern": {
						Type:        "string",
						Description: "搜索模式 (大小写不敏感)",
					},
				},
				Required: []string{"pattern"},
			},
		},
		{
			Name:        "pools",
			Description: "列出某个 token 所在的池子; 不填地址时返回各协议的池子数",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"address": {
						Type:        "string",
						Description: "token 地址",
					},
				},
			},
		},
		{
			Name:        "neighbors",
			Description: "分析 token 或 pool 的邻域: 直接相连的池子以及经由池子可达的 token",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"address": {
						Type:        "string",
						Description: "token 或 pool 地址 (支持模糊匹配)",
					},
					"depth": {
						Type:        "number",
						Description: "最多经过的池子数, 默认 2",
						Default:     route.DefaultDepth,
					},
				},
				Required: []string{"address"},
			},
		},
		{
			Name:        "mermaid",
			Description: "生成 token-pool 交易图的 Mermaid 图",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"max_edges": {
						Type:        "number",
						Description: "最多渲染的边数, 默认 100",
						Default:     100,
					},
				},
			},
		},
	}
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return fallback
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func (s *Server) toolStats(args map[string]any) (string, bool) {
	limit := intArg(args, "limit", defaultLimit)

	categories := stats.Categories()
	if c := stringArg(args, "category"); c != "" {
		category := stats.Category(c)
		if !category.Valid() {
			return fmt.Sprintf("错误：未知的统计类别 %q", c), true
		}
		categories = []stats.Category{category}
	}

	nodeCount, edgeCount, err := s.db.GetStats()
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## 图谱统计\n\n节点: %d | 边: %d\n\n", nodeCount, edgeCount))

	for _, category := range categories {
		entries, err := s.db.GetCounters(category)
		if err != nil {
			return fmt.Sprintf("错误：%v", err), true
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", category))
		if len(entries) == 0 {
			sb.WriteString("_无记录_\n\n")
			continue
		}
		total := len(entries)
		if len(entries) > limit {
			entries = entries[:limit]
		}
		for _, e := range entries {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", e.Key, e.Count))
		}
		if total > limit {
			sb.WriteString(fmt.Sprintf("\n_（共 %d 项，仅显示前 %d 项）_\n", total, limit))
		}
		sb.WriteString("\n")
	}
	return sb.String(), false
}

func (s *Server) toolSearch(args map[string]any) (string, bool) {
	pattern := stringArg(args, "pattern")
	if pattern == "" {
		return "错误：需要提供搜索模式", true
	}

	nodes, err := s.db.FindNodesByPattern(pattern)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	if len(nodes) == 0 {
		return fmt.Sprintf("未找到匹配 '%s' 的节点", pattern), false
	}

	total := len(nodes)
	if len(nodes) > defaultLimit {
		nodes = nodes[:defaultLimit]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("找到 %d 个匹配节点:\n\n", total))
	for _, n := range nodes {
		if n.PoolType != "" {
			sb.WriteString(fmt.Sprintf("- [%s] %s (%s)\n", n.Kind, n.ID, n.PoolType))
		} else {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", n.Kind, n.ID))
		}
	}
	if total > defaultLimit {
		sb.WriteString(fmt.Sprintf("\n_（仅显示前 %d 个）_\n", defaultLimit))
	}
	return sb.String(), false
}

func (s *Server) toolPools(args map[string]any) (string, bool) {
	address := stringArg(args, "address")

	var sb strings.Builder
	if address == "" {
		entries, err := s.db.GetProtocolPoolCounts()
		if err != nil {
			return fmt.Sprintf("错误：%v", err), true
		}
		sb.WriteString("## 各协议池子数\n\n")
		if len(entries) == 0 {
			sb.WriteString("_无池子_\n")
		}
		for _, e := range entries {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", e.Key, e.Count))
		}
		return sb.String(), false
	}

	pools, err := s.db.GetPoolsForToken(address)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	sb.WriteString(fmt.Sprintf("## %s 所在池子 (%d 个)\n\n", address, len(pools)))
	if len(pools) == 0 {
		sb.WriteString("_无池子_\n")
	}
	for _, p := range pools {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", p.ID, p.PoolType))
	}
	return sb.String(), false
}

func (s *Server) toolNeighbors(args map[string]any) (string, bool) {
	address := stringArg(args, "address")
	if address == "" {
		return "错误：需要提供地址", true
	}
	depth := intArg(args, "depth", route.DefaultDepth)

	report, err := route.NewAnalyzer(s.db).Analyze(address, depth)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	return report.FormatMarkdown(), false
}

func (s *Server) toolMermaid(args map[string]any) (string, bool) {
	maxEdges := intArg(args, "max_edges", 100)

	var sb strings.Builder
	if err := export.NewExporter(s.db).WriteMermaid(&sb, maxEdges); err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	return sb.String(), false
}
