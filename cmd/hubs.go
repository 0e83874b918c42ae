package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func hubsCmd() *cobra.Command {
	var top int
	var format string

	cmd := &cobra.Command{
		Use:   "hubs",
		Short: "列出连接池子最多的核心 token",
		Long: `按所在池子数排序列出 token, 并按池子数分级:

  🔴 critical  >= 50 个池子
  🟠 high      >= 20 个池子
  🟡 medium    >= 5 个池子
  🟢 low       其余

示例：
  tgraph hubs
  tgraph hubs --top 5 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			hubs, err := db.GetTopTokens(top)
			if err != nil {
				return fmt.Errorf("查询核心 token 失败: %w", err)
			}

			if format == "json" {
				return outputJSON(hubs)
			}
			if len(hubs) == 0 {
				fmt.Println("数据库中没有 token")
				return nil
			}

			fmt.Printf("核心 Token (前 %d):\n\n", len(hubs))
			for i, h := range hubs {
				fmt.Printf("%3d. %s %-8s %s  (%d 个池子)\n", i+1, getHubIcon(h.Level), h.Level, h.Node.ID, h.Pools)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "显示前 N 个")
	cmd.Flags().StringVar(&format, "format", "text", "输出格式 (text/json)")

	return cmd
}
