package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zheng/tgraph/internal/display"
	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/stats"
	"github.com/zheng/tgraph/internal/storage"
)

// BuildSummary is the outcome of one analyze run
type BuildSummary struct {
	RunID       string        `json:"run_id,omitempty"`
	Source      string        `json:"source"`
	Lines       int           `json:"lines"`
	Accepted    int           `json:"accepted"`
	NoMatch     int           `json:"no_match"`
	Unsupported int           `json:"unsupported"`
	Filtered    int           `json:"filtered"`
	Tokens      int           `json:"tokens"`
	Pools       int           `json:"pools"`
	Edges       int           `json:"edges"`
	Protocols   []stats.Entry `json:"protocols"`
	Functions   []stats.Entry `json:"functions"`
	TokenPairs  []stats.Entry `json:"token_pairs"`
	DurationMs  int64         `json:"duration_ms"`
}

func newBuildSummary(source string, result *graph.BuildResult, run *storage.Run) *BuildSummary {
	snap := result.Stats.Snapshot()
	s := &BuildSummary{
		Source:      source,
		Lines:       result.Lines,
		Accepted:    result.Accepted,
		NoMatch:     result.NoMatch,
		Unsupported: result.Unsupported,
		Filtered:    result.Filtered,
		Tokens:      len(result.Graph.NodesByKind(graph.NodeKindToken)),
		Pools:       len(result.Graph.NodesByKind(graph.NodeKindPool)),
		Edges:       result.Graph.EdgeCount(),
		Protocols:   stats.Ranked(snap.Protocols),
		Functions:   stats.Ranked(snap.Functions),
		TokenPairs:  stats.Ranked(snap.TokenPairs),
		DurationMs:  result.Duration.Milliseconds(),
	}
	if run != nil {
		s.RunID = run.ID
	}
	return s
}

func analyzeCmd() *cobra.Command {
	var tokens []string
	var tokensFile string
	var format string
	var topPairs int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "analyze <trace-file>",
		Short: "解析 trace 文件并构建交易图",
		Long: `逐行解析 trace 文件, 识别价格查询调用, 构建 token-pool 交易图并统计调用次数。

每次分析都会替换数据库中已有的图和统计, 历史运行记录保留。

示例：
  tgraph analyze trace.txt
  tgraph analyze trace.txt --tokens 0xC02a...,0xA0b8...
  tgraph analyze trace.txt --tokens-file tokens.txt --format json
  tgraph analyze trace.txt --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracePath := args[0]

			allowed, err := resolveAllowList(tokens, tokensFile)
			if err != nil {
				return err
			}
			if len(allowed) > 0 {
				zap.L().Info("token whitelist enabled", zap.Int("tokens", len(allowed)))
			}

			builder := graph.NewBuilder(
				graph.WithAllowedTokens(allowed),
				graph.WithLogger(zap.L()),
			)

			startedAt := time.Now()
			result, err := builder.BuildFile(tracePath)
			if err != nil {
				return fmt.Errorf("分析失败: %w", err)
			}

			var run *storage.Run
			if !dryRun {
				db, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()

				run, err = db.Replace(context.Background(), result, tracePath, startedAt)
				if err != nil {
					return fmt.Errorf("保存结果失败: %w", err)
				}
			}

			summary := newBuildSummary(tracePath, result, run)
			if format == "json" {
				return outputJSON(summary)
			}
			printSummary(summary, topPairs)
			if run != nil {
				fmt.Printf("\n已保存到 %s (运行 %s)\n", DbPath, run.ID)
			} else {
				fmt.Println("\n(dry-run: 结果未保存)")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "token 白名单, 逗号分隔 (覆盖配置)")
	cmd.Flags().StringVar(&tokensFile, "tokens-file", "", "token 白名单文件, 每行一个地址")
	cmd.Flags().StringVar(&format, "format", "text", "输出格式 (text/json)")
	cmd.Flags().IntVar(&topPairs, "top", 10, "显示前 N 个 token 对")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只分析不写入数据库")

	return cmd
}

func printSummary(s *BuildSummary, topPairs int) {
	fmt.Printf("✓ 分析完成: %s (耗时 %dms)\n", s.Source, s.DurationMs)
	fmt.Printf("  行数: %d | 接受: %d | 未匹配: %d | 非价格函数: %d | 已过滤: %d\n",
		s.Lines, s.Accepted, s.NoMatch, s.Unsupported, s.Filtered)
	fmt.Printf("  节点: %d (token %d, pool %d) | 边: %d\n", s.Tokens+s.Pools, s.Tokens, s.Pools, s.Edges)

	printEntries("协议调用统计", s.Protocols, 0, nil)
	printEntries("函数调用统计", s.Functions, 0, nil)
	printEntries("Token 对调用统计", s.TokenPairs, topPairs, display.ShortPair)
}

// printEntries prints a ranked counter list, keeping at most limit rows
// (0 means all) and shortening keys with label when given
func printEntries(title string, entries []stats.Entry, limit int, label func(string) string) {
	fmt.Printf("\n%s:\n", title)
	if len(entries) == 0 {
		fmt.Println("  (无)")
		return
	}

	shown := entries
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	width := 0
	keys := make([]string, len(shown))
	for i, e := range shown {
		keys[i] = e.Key
		if label != nil {
			keys[i] = label(e.Key)
		}
		if n := utf8.RuneCountInString(keys[i]); n > width {
			width = n
		}
	}
	for i, e := range shown {
		fmt.Printf("  %-*s  %d\n", width, keys[i], e.Count)
	}
	if len(shown) < len(entries) {
		fmt.Printf("  ... 共 %d 项\n", len(entries))
	}
}

func parseCategory(s string) (stats.Category, error) {
	c := stats.Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("未知的统计类别 %q (可选: protocol, function, token_pair)", s)
	}
	return c, nil
}
