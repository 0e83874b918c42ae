package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zheng/tgraph/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tgraph",
		Short: "Trace Graph - DeFi 调用 trace 交易图分析工具",
		Long: `tgraph 解析链上模拟器输出的调用 trace，识别各协议的价格查询调用，
构建 token-pool 交易图并统计各协议、各函数、各 token 对的调用次数。`,
		SilenceUsage:      true,
		PersistentPreRunE: cmd.Setup,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cmd.DbPath, "db", "d", cmd.Cfg.DBPath, "数据库文件路径")
	rootCmd.PersistentFlags().StringVarP(&cmd.ConfigPath, "config", "c", "", "配置文件路径 (YAML)")
	rootCmd.PersistentFlags().StringVar(&cmd.LogLevel, "log-level", "", "日志级别 (debug/info/warn/error)")

	cmd.RegisterCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
