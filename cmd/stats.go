package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zheng/tgraph/internal/display"
	"github.com/zheng/tgraph/internal/stats"
	"github.com/zheng/tgraph/internal/storage"
)

func statsCmd() *cobra.Command {
	var category string
	var top int
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "显示调用统计",
		Long: `显示最近一次分析的调用统计: 各协议、各函数、各 token 对的调用次数。

示例：
  tgraph stats
  tgraph stats --category protocol
  tgraph stats --category token_pair --top 5 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories := stats.Categories()
			if category != "" {
				c, err := parseCategory(category)
				if err != nil {
					return err
				}
				categories = []stats.Category{c}
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if format == "json" {
				out := make(map[stats.Category][]stats.Entry, len(categories))
				for _, c := range categories {
					entries, err := db.GetCounters(c)
					if err != nil {
						return fmt.Errorf("查询统计失败: %w", err)
					}
					if top > 0 && len(entries) > top {
						entries = entries[:top]
					}
					out[c] = entries
				}
				return outputJSON(out)
			}

			nodeCount, edgeCount, err := db.GetStats()
			if err != nil {
				return fmt.Errorf("查询统计失败: %w", err)
			}
			fmt.Printf("节点: %d | 边: %d\n", nodeCount, edgeCount)

			run, err := db.GetLatestRun()
			switch {
			case err == nil:
				fmt.Printf("最近运行: %s (%s, %s)\n", run.ID, run.Source, run.StartedAt.Format("2006-01-02 15:04:05"))
			case errors.Is(err, storage.ErrNotFound):
				fmt.Println("数据库中没有分析记录, 请先运行 'tgraph analyze <trace-file>'")
				return nil
			default:
				return fmt.Errorf("查询运行记录失败: %w", err)
			}

			titles := map[stats.Category]string{
				stats.CategoryProtocol:  "协议调用统计",
				stats.CategoryFunction:  "函数调用统计",
				stats.CategoryTokenPair: "Token 对调用统计",
			}
			for _, c := range categories {
				entries, err := db.GetCounters(c)
				if err != nil {
					return fmt.Errorf("查询统计失败: %w", err)
				}
				var label func(string) string
				if c == stats.CategoryTokenPair {
					label = display.ShortPair
				}
				printEntries(titles[c], entries, top, label)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "只显示某一类 (protocol/function/token_pair)")
	cmd.Flags().IntVar(&top, "top", 0, "每类最多显示 N 项 (0 表示全部)")
	cmd.Flags().StringVar(&format, "format", "text", "输出格式 (text/json)")

	return cmd
}
