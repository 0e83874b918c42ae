package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/storage"
)

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openDB() (*storage.DB, error) {
	db, err := storage.Open(DbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return db, nil
}

// readAllowListFile loads one token address per line, skipping comments
func readAllowListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return graph.LoadAllowList(f)
}

// resolveAllowList prefers command line tokens over configured ones
func resolveAllowList(tokens []string, tokensFile string) ([]string, error) {
	if len(tokens) == 0 && tokensFile == "" {
		return Cfg.Tokens(readAllowListFile)
	}

	allowed := append([]string(nil), tokens...)
	if tokensFile != "" {
		fromFile, err := readAllowListFile(tokensFile)
		if err != nil {
			return nil, fmt.Errorf("读取白名单失败: %w", err)
		}
		allowed = append(allowed, fromFile...)
	}
	return allowed, nil
}

func getHubIcon(level string) string {
	switch level {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	case "medium":
		return "🟡"
	default:
		return "🟢"
	}
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
