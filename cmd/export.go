package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zheng/tgraph/internal/export"
)

func exportCmd() *cobra.Command {
	var outputFile string
	var noMermaid bool
	var maxEdges int
	var topPairs int
	var topHubs int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出 Markdown 报告",
		Long: `导出交易图报告 (Markdown 格式): 调用统计、各协议池子数、核心 token 和 Mermaid 交易图。

示例：
  tgraph export -o report.md
  tgraph export --no-mermaid
  tgraph export --max-edges 50 --top-pairs 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := export.DefaultExportOptions()
			opts.IncludeMermaid = !noMermaid
			opts.MaxEdges = Cfg.Export.MaxEdges
			opts.TopPairs = Cfg.Export.TopPairs
			if cmd.Flags().Changed("max-edges") {
				opts.MaxEdges = maxEdges
			}
			if cmd.Flags().Changed("top-pairs") {
				opts.TopPairs = topPairs
			}
			opts.TopHubs = topHubs

			w := os.Stdout
			if outputFile != "" && outputFile != "-" {
				w, err = os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("创建输出文件失败: %w", err)
				}
				defer w.Close()
			}

			if err := export.NewExporter(db).Export(w, opts); err != nil {
				return fmt.Errorf("导出失败: %w", err)
			}
			if w != os.Stdout {
				fmt.Fprintf(os.Stderr, "已导出到 %s\n", outputFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "输出文件路径 (默认输出到 stdout)")
	cmd.Flags().BoolVar(&noMermaid, "no-mermaid", false, "不生成 Mermaid 图表")
	cmd.Flags().IntVar(&maxEdges, "max-edges", 200, "Mermaid 图最多渲染的边数 (0 表示全部)")
	cmd.Flags().IntVar(&topPairs, "top-pairs", 20, "token 对排行条数 (0 表示全部)")
	cmd.Flags().IntVar(&topHubs, "top-hubs", 10, "核心 token 条数 (0 表示不输出)")

	return cmd
}
