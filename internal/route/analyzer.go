package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zheng/tgraph/internal/display"
	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/storage"
)

// DefaultDepth is the number of pools crossed when no depth is given
const DefaultDepth = 2

// Analyzer explores the stored graph around a token or pool
type Analyzer struct {
	db *storage.DB
}

// NewAnalyzer creates a new neighbourhood analyzer
func NewAnalyzer(db *storage.DB) *Analyzer {
	return &Analyzer{db: db}
}

// Report describes what a token or pool is connected to
type Report struct {
	Target *graph.Node               `json:"target"`
	Depth  int                       `json:"depth"`
	Pools  []*graph.Node             `json:"pools"`  // 直接相连的池子 (仅 token)
	Tokens []*storage.ReachableToken `json:"tokens"` // 可达 token 及经过的池子数
	Tree   []*storage.TreeNode       `json:"-"`
}

// Resolve finds a node by exact address, falling back to a unique pattern match
func (a *Analyzer) Resolve(address string) (*graph.Node, error) {
	target, err := a.db.GetNode(address)
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	nodes, err := a.db.FindNodesByPattern(address)
	if err != nil {
		return nil, fmt.Errorf("failed to find node: %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, address)
	}
	if len(nodes) > 1 {
		var ids []string
		for _, n := range nodes {
			ids = append(ids, n.ID)
		}
		return nil, fmt.Errorf("ambiguous address, found %d matches: %s", len(nodes), strings.Join(ids, ", "))
	}
	return nodes[0], nil
}

// Analyze reports the pools of a token and the tokens reachable from it
// through at most depth pools, or the tokens of a pool.
func (a *Analyzer) Analyze(address string, depth int) (*Report, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}

	target, err := a.Resolve(address)
	if err != nil {
		return nil, err
	}
	report := &Report{Target: target, Depth: depth}

	if target.Kind == graph.NodeKindPool {
		tokens, err := a.db.GetTokensForPool(target.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get pool tokens: %w", err)
		}
		for _, t := range tokens {
			report.Tokens = append(report.Tokens, &storage.ReachableToken{Node: t, Depth: 1})
		}
		report.Tree, err = a.db.GetNeighborTree(target.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build tree: %w", err)
		}
		return report, nil
	}

	report.Pools, err = a.db.GetPoolsForToken(target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get token pools: %w", err)
	}
	report.Tokens, err = a.db.GetReachableTokens(target.ID, depth)
	if err != nil {
		return nil, fmt.Errorf("failed to get reachable tokens: %w", err)
	}
	// token -> pool -> token is two hops per pool crossed
	report.Tree, err = a.db.GetNeighborTree(target.ID, depth*2)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}
	return report, nil
}

// FormatMarkdown formats the report as markdown
func (r *Report) FormatMarkdown() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## 邻域分析: %s\n\n", r.Target.ID))
	sb.WriteString(fmt.Sprintf("**类型:** %s\n\n", r.Target.Kind))
	if r.Target.PoolType != "" {
		sb.WriteString(fmt.Sprintf("**协议:** %s\n\n", r.Target.PoolType))
	}

	if r.Target.Kind == graph.NodeKindToken {
		sb.WriteString("### 直接相连的池子\n\n")
		if len(r.Pools) == 0 {
			sb.WriteString("_无相连池子_\n\n")
		} else {
			sb.WriteString("| 池子 | 协议 |\n")
			sb.WriteString("|------|------|\n")
			for _, p := range r.Pools {
				sb.WriteString(fmt.Sprintf("| %s | %s |\n", p.ID, p.PoolType))
			}
			sb.WriteString("\n")
		}
	}

	if r.Target.Kind == graph.NodeKindPool {
		sb.WriteString("### 池内 token\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("### 可达 token (最多经过 %d 个池子)\n\n", r.Depth))
	}
	if len(r.Tokens) == 0 {
		sb.WriteString("_无可达 token_\n\n")
	} else {
		sb.WriteString("| Token | 经过池子数 |\n")
		sb.WriteString("|-------|------------|\n")
		for _, t := range r.Tokens {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", t.Node.ID, t.Depth))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatTree formats the report as a tree structure
func (r *Report) FormatTree() string {
	var sb strings.Builder

	sb.WriteString("📍 当前节点\n")
	sb.WriteString(fmt.Sprintf("%s  %s\n\n", display.NodeLabel(r.Target), r.Target.ID))

	if len(r.Tree) == 0 {
		sb.WriteString("🔗 相邻节点\n")
		sb.WriteString("└── (无)\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("🔗 相邻节点 (池子 %d 个, token %d 个)\n", len(r.Pools), len(r.Tokens)))
	sb.WriteString(display.RenderTree(r.Tree))
	return sb.String()
}

// Summary returns a brief summary of the report
func (r *Report) Summary() string {
	return fmt.Sprintf(
		"Target: %s (%s), Pools: %d, Reachable Tokens: %d, Depth: %d",
		display.ShortAddress(r.Target.ID),
		r.Target.Kind,
		len(r.Pools),
		len(r.Tokens),
		r.Depth,
	)
}
