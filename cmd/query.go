package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zheng/tgraph/internal/display"
	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/route"
)

func listCmd() *cobra.Command {
	var kind string
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出图中的节点",
		Long: `列出图中的 token 和 pool 节点。

示例：
  tgraph list
  tgraph list --kind pool
  tgraph list --kind token --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var nodes []*graph.Node
			switch kind {
			case "":
				nodes, err = db.GetAllNodes()
			case string(graph.NodeKindToken), string(graph.NodeKindPool):
				nodes, err = db.GetNodesByKind(graph.NodeKind(kind))
			default:
				return fmt.Errorf("未知的节点类型 %q (可选: token, pool)", kind)
			}
			if err != nil {
				return fmt.Errorf("查询节点失败: %w", err)
			}

			if format == "json" {
				return outputJSON(nodes)
			}
			printNodes(nodes)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "节点类型 (token/pool)")
	cmd.Flags().StringVar(&format, "format", "text", "输出格式 (text/json)")

	return cmd
}

func searchCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "按地址片段或协议名搜索节点",
		Long: `按地址片段或协议名搜索节点, 大小写不敏感。

示例：
  tgraph search c02aaa
  tgraph search UniswapV3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			nodes, err := db.FindNodesByPattern(args[0])
			if err != nil {
				return fmt.Errorf("搜索失败: %w", err)
			}

			if format == "json" {
				return outputJSON(nodes)
			}
			if len(nodes) == 0 {
				fmt.Printf("未找到匹配 '%s' 的节点\n", args[0])
				return nil
			}
			fmt.Printf("找到 %d 个匹配节点:\n\n", len(nodes))
			printNodes(nodes)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "输出格式 (text/json)")

	return cmd
}

func neighborsCmd() *cobra.Command {
	var depth int
	var format string

	cmd := &cobra.Command{
		Use:   "neighbors <address>",
		Short: "分析 token 或 pool 的邻域",
		Long: `显示节点直接相连的池子, 以及经由池子可达的 token。

地址支持片段匹配, 匹配到多个节点时会列出候选。

示例：
  tgraph neighbors 0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2
  tgraph neighbors c02aaa --depth 3
  tgraph neighbors 0xB4e1 --format markdown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := route.NewAnalyzer(db).Analyze(args[0], depth)
			if err != nil {
				if nodes, ferr := db.FindNodesByPattern(args[0]); ferr == nil && len(nodes) > 1 {
					fmt.Println("找到多个匹配的节点，请使用更完整的地址:")
					printNodes(nodes)
					fmt.Println()
				}
				return err
			}

			switch format {
			case "json":
				return outputJSON(report)
			case "markdown":
				fmt.Print(report.FormatMarkdown())
			default:
				fmt.Print(report.FormatTree())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", route.DefaultDepth, "最多经过的池子数")
	cmd.Flags().StringVar(&format, "format", "tree", "输出格式 (tree/markdown/json)")

	return cmd
}

func printNodes(nodes []*graph.Node) {
	if len(nodes) == 0 {
		fmt.Println("  (无)")
		return
	}
	for _, n := range nodes {
		if n.PoolType != "" {
			fmt.Printf("  [%-5s] %s  %s\n", n.Kind, n.ID, n.PoolType)
		} else {
			fmt.Printf("  [%-5s] %s\n", n.Kind, n.ID)
		}
	}
}

// shortNodes returns abbreviated labels for compact listings
func shortNodes(nodes []*graph.Node) []string {
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		labels[i] = display.NodeLabel(n)
	}
	return labels
}
