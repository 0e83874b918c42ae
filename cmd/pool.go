package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/route"
	"github.com/zheng/tgraph/internal/storage"
)

// PoolInfo describes one pool and the tokens traded in it
type PoolInfo struct {
	Pool   *graph.Node           `json:"pool"`
	Tokens []*graph.Node         `json:"tokens"`
	Edges  []*storage.EdgeRecord `json:"edges"`
}

func poolCmd() *cobra.Command {
	var list bool
	var format string

	cmd := &cobra.Command{
		Use:   "pool [address]",
		Short: "查看池子详情或各协议的池子数",
		Long: `查看一个池子中的 token 以及最后观察到的调用, 或列出各协议的池子数。

示例：
  tgraph pool 0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc
  tgraph pool --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !list && len(args) == 0 {
				return fmt.Errorf("需要提供池子地址或使用 --list")
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if list {
				return printProtocolPools(db, format)
			}

			node, err := route.NewAnalyzer(db).Resolve(args[0])
			if err != nil {
				return err
			}
			if node.Kind != graph.NodeKindPool {
				return fmt.Errorf("%s 是 token 而不是池子, 请使用 'tgraph neighbors %s'", node.ID, node.ID)
			}

			tokens, err := db.GetTokensForPool(node.ID)
			if err != nil {
				return fmt.Errorf("查询池内 token 失败: %w", err)
			}
			edges, err := db.GetEdgesForNode(node.ID)
			if err != nil {
				return fmt.Errorf("查询边失败: %w", err)
			}

			info := &PoolInfo{Pool: node, Tokens: tokens, Edges: edges}
			if format == "json" {
				return outputJSON(info)
			}

			fmt.Printf("池子: %s\n", node.ID)
			fmt.Printf("协议: %s\n", node.PoolType)
			fmt.Printf("\nToken (%d 个): %s\n", len(tokens), strings.Join(shortNodes(tokens), ", "))
			for _, t := range tokens {
				fmt.Printf("  %s\n", t.ID)
			}
			fmt.Printf("\n最后观察到的调用:\n")
			for _, e := range edges {
				fmt.Printf("  [%d] %s %s() => (%s)\n", e.Index, e.Token, e.Function, e.Result)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "列出各协议的池子数")
	cmd.Flags().StringVar(&format, "format", "text", "输出格式 (text/json)")

	return cmd
}

func printProtocolPools(db *storage.DB, format string) error {
	entries, err := db.GetProtocolPoolCounts()
	if err != nil {
		return fmt.Errorf("查询池子失败: %w", err)
	}
	if format == "json" {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("数据库中没有池子")
		return nil
	}
	printEntries("各协议池子数", entries, 0, nil)
	return nil
}
