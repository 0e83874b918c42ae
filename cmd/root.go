package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zheng/tgraph/internal/config"
	"github.com/zheng/tgraph/internal/logging"
)

var (
	DbPath     string
	ConfigPath string
	LogLevel   string

	// Cfg is the loaded configuration, set by Setup before any command runs
	Cfg = config.Default()
)

// RegisterCommands adds all subcommands to the root command
func RegisterCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(poolCmd())
	rootCmd.AddCommand(neighborsCmd())
	rootCmd.AddCommand(hubsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(viewCmd())
}

// Setup loads configuration, applies global flag overrides and installs
// the default logger
func Setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if cmd.Flags().Changed("db") {
		cfg.DBPath = DbPath
	}
	if LogLevel != "" {
		cfg.Log.Level = LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	zap.ReplaceGlobals(logger)

	Cfg = cfg
	DbPath = cfg.DBPath
	return nil
}
