package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zheng/tgraph/internal/display"
	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/stats"
	"github.com/zheng/tgraph/internal/storage"
)

// Exporter generates a Markdown report from the trace graph database
type Exporter struct {
	db *storage.DB
}

// NewExporter creates a new exporter
func NewExporter(db *storage.DB) *Exporter {
	return &Exporter{db: db}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	IncludeMermaid bool
	MaxEdges       int // 0 表示不限制
	TopPairs       int // 0 表示全部
	TopHubs        int
	Title          string
}

// DefaultExportOptions returns default export options
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludeMermaid: true,
		MaxEdges:       200,
		TopPairs:       20,
		TopHubs:        10,
		Title:          "Trace 交易图谱",
	}
}

// Export writes the complete report
func (e *Exporter) Export(w io.Writer, opts ExportOptions) error {
	nodeCount, edgeCount, err := e.db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	tokens, err := e.db.GetNodesByKind(graph.NodeKindToken)
	if err != nil {
		return fmt.Errorf("failed to get tokens: %w", err)
	}

	// Header
	fmt.Fprintf(w, "# %s\n\n", opts.Title)
	fmt.Fprintf(w, "> 生成时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "> 节点: %d (token %d, pool %d) | 边: %d\n", nodeCount, len(tokens), nodeCount-int64(len(tokens)), edgeCount)

	run, err := e.db.GetLatestRun()
	switch {
	case err == nil:
		fmt.Fprintf(w, "> 来源: %s | 运行: %s | 行数: %d | 接受: %d | 未匹配: %d | 非价格函数: %d | 已过滤: %d\n",
			run.Source, run.ID, run.Lines, run.Accepted, run.NoMatch, run.Unsupported, run.Filtered)
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to get latest run: %w", err)
	}
	fmt.Fprintln(w)

	if err := e.writeCounters(w, stats.CategoryProtocol, "## 协议调用统计", "协议", 0); err != nil {
		return err
	}
	if err := e.writeCounters(w, stats.CategoryFunction, "## 函数调用统计", "函数", 0); err != nil {
		return err
	}
	if err := e.writeCounters(w, stats.CategoryTokenPair, "## Token 对调用统计", "Token 对", opts.TopPairs); err != nil {
		return err
	}

	if err := e.writeProtocolPools(w); err != nil {
		return err
	}
	if err := e.writeHubs(w, opts.TopHubs); err != nil {
		return err
	}

	if opts.IncludeMermaid {
		fmt.Fprintf(w, "## 交易图\n\n")
		if err := e.WriteMermaid(w, opts.MaxEdges); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeCounters(w io.Writer, category stats.Category, heading, column string, limit int) error {
	entries, err := e.db.GetCounters(category)
	if err != nil {
		return fmt.Errorf("failed to get %s counters: %w", category, err)
	}

	fmt.Fprintf(w, "%s\n\n", heading)
	if len(entries) == 0 {
		fmt.Fprintf(w, "_无记录_\n\n")
		return nil
	}

	total := 0
	for _, en := range entries {
		total += en.Count
	}
	shown := entries
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	fmt.Fprintf(w, "| %s | 次数 |\n", column)
	fmt.Fprintf(w, "|------|------|\n")
	for _, en := range shown {
		fmt.Fprintf(w, "| %s | %d |\n", en.Key, en.Count)
	}
	if len(shown) < len(entries) {
		fmt.Fprintf(w, "\n_仅显示前 %d / %d 项_\n", len(shown), len(entries))
	}
	fmt.Fprintf(w, "\n**合计:** %d\n\n", total)
	return nil
}

func (e *Exporter) writeProtocolPools(w io.Writer) error {
	entries, err := e.db.GetProtocolPoolCounts()
	if err != nil {
		return fmt.Errorf("failed to get pools per protocol: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	fmt.Fprintf(w, "## 各协议池子数\n\n")
	fmt.Fprintf(w, "| 协议 | 池子数 |\n")
	fmt.Fprintf(w, "|------|--------|\n")
	for _, en := range entries {
		fmt.Fprintf(w, "| %s | %d |\n", en.Key, en.Count)
	}
	fmt.Fprintln(w)
	return nil
}

func (e *Exporter) writeHubs(w io.Writer, limit int) error {
	if limit <= 0 {
		return nil
	}
	hubs, err := e.db.GetTopTokens(limit)
	if err != nil {
		return fmt.Errorf("failed to get token hubs: %w", err)
	}
	if len(hubs) == 0 {
		return nil
	}

	fmt.Fprintf(w, "## 核心 Token\n\n")
	fmt.Fprintf(w, "| Token | 池子数 | 等级 |\n")
	fmt.Fprintf(w, "|-------|--------|------|\n")
	for _, h := range hubs {
		fmt.Fprintf(w, "| %s | %d | %s |\n", h.Node.ID, h.Pools, h.Level)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteMermaid writes the token-pool graph as a Mermaid block, keeping at
// most maxEdges edges (0 means all).
func (e *Exporter) WriteMermaid(w io.Writer, maxEdges int) error {
	edges, err := e.db.GetAllEdges()
	if err != nil {
		return fmt.Errorf("failed to get edges: %w", err)
	}

	total := len(edges)
	if maxEdges > 0 && total > maxEdges {
		edges = edges[:maxEdges]
	}

	fmt.Fprintf(w, "```mermaid\ngraph LR\n")

	ids := make(nodeIDs)
	declare := func(address string) error {
		id, fresh := ids.get(address)
		if !fresh {
			return nil
		}
		n, err := e.db.GetNode(address)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "    %s\n", mermaidNode(id, n))
		return nil
	}

	for _, edge := range edges {
		if err := declare(edge.Token); err != nil {
			return fmt.Errorf("failed to get node %s: %w", edge.Token, err)
		}
		if err := declare(edge.Pool); err != nil {
			return fmt.Errorf("failed to get node %s: %w", edge.Pool, err)
		}
	}

	for _, edge := range edges {
		fmt.Fprintf(w, "    %s ---|%s| %s\n", ids[edge.Token], edge.Function, ids[edge.Pool])
	}

	if len(edges) < total {
		fmt.Fprintf(w, "    %%%% 已截断: 显示 %d / %d 条边\n", len(edges), total)
	}
	fmt.Fprintf(w, "```\n\n")
	return nil
}

// mermaidNode renders a token as a circle and a pool as a box
func mermaidNode(id string, n *graph.Node) string {
	label := display.ShortAddress(n.ID)
	if n.Kind == graph.NodeKindPool {
		if n.PoolType != "" {
			label += "<br/>" + n.PoolType
		}
		return fmt.Sprintf("%s[\"%s\"]", id, escapeLabel(label))
	}
	return fmt.Sprintf("%s((\"%s\"))", id, escapeLabel(label))
}

// nodeIDs maps each address to a Mermaid node ID (n0, n1, ...)
type nodeIDs map[string]string

// get returns the ID for address and whether it was just assigned
func (ids nodeIDs) get(address string) (string, bool) {
	if id, ok := ids[address]; ok {
		return id, false
	}
	id := fmt.Sprintf("n%d", len(ids))
	ids[address] = id
	return id, true
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}
