package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/mcp"
	"github.com/zheng/tgraph/internal/storage"
	"github.com/zheng/tgraph/internal/watcher"
	"github.com/zheng/tgraph/internal/web"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "启动 MCP (Model Context Protocol) 服务器",
		Long: `启动 MCP 服务器，允许 AI 助手直接查询交易图。

MCP 工具包括：
  - stats: 协议、函数、token 对调用统计
  - search: 搜索 token / pool
  - pools: 查询 token 所在池子
  - neighbors: 分析节点邻域
  - mermaid: 生成 Mermaid 交易图`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			server := mcp.NewServer(db, mcp.WithLogger(zap.L()))
			return server.Run()
		},
	}

	return cmd
}

// newTraceWatcher wires a watcher that prints progress to the terminal.
// onDone, when set, runs after each persisted rebuild.
func newTraceWatcher(tracePath string, db *storage.DB, tokens []string, tokensFile string, debounceMs int, onDone func(*storage.Run)) (*watcher.Watcher, error) {
	allowed, err := resolveAllowList(tokens, tokensFile)
	if err != nil {
		return nil, err
	}
	builder := graph.NewBuilder(
		graph.WithAllowedTokens(allowed),
		graph.WithLogger(zap.L()),
	)

	w, err := watcher.New(
		tracePath,
		db,
		builder,
		watcher.WithDebounceDelay(time.Duration(debounceMs)*time.Millisecond),
		watcher.WithOnRebuildStart(func() {
			fmt.Printf("[%s] 检测到变更，开始分析...\n", timestamp())
		}),
		watcher.WithOnRebuildDone(func(run *storage.Run, result *graph.BuildResult) {
			fmt.Printf("[%s] 分析完成: %d 行, 接受 %d, %d 节点, %d 边 (耗时 %v)\n",
				timestamp(), result.Lines, result.Accepted,
				result.Graph.NodeCount(), result.Graph.EdgeCount(),
				result.Duration.Round(time.Millisecond))
			if onDone != nil {
				onDone(run)
			}
		}),
		watcher.WithOnError(func(err error) {
			fmt.Fprintf(os.Stderr, "[%s] 错误: %v\n", timestamp(), err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建监控器失败: %w", err)
	}
	return w, nil
}

func watchCmd() *cobra.Command {
	var debounceMs int
	var tokens []string
	var tokensFile string

	cmd := &cobra.Command{
		Use:   "watch <trace-file>",
		Short: "监控 trace 文件并自动重建交易图",
		Long: `启动 watch 模式，监控 trace 文件。
当文件被写入或替换时，重新分析整个文件并替换数据库中的图和统计。

特性：
  - 文件不存在时等待其被创建
  - 防抖处理，避免频繁触发分析
  - 每次重建记录一条运行记录

示例：
  tgraph watch trace.txt
  tgraph watch trace.txt -d trace.db
  tgraph watch trace.txt --debounce 1000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("debounce") {
				debounceMs = Cfg.Watch.DebounceMs
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			w, err := newTraceWatcher(args[0], db, tokens, tokensFile, debounceMs, nil)
			if err != nil {
				return err
			}
			defer w.Stop()

			if _, statErr := os.Stat(w.Path()); statErr == nil {
				fmt.Println("执行初始分析...")
				if _, err := w.Trigger(context.Background()); err != nil {
					return fmt.Errorf("初始分析失败: %w", err)
				}
			}

			fmt.Printf("\n开始监控文件: %s\n", w.Path())
			fmt.Printf("数据库路径: %s\n", DbPath)
			fmt.Printf("防抖延迟: %dms\n", debounceMs)
			fmt.Println("\n按 Ctrl+C 停止...")
			fmt.Println()

			w.Start()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			fmt.Println("\n停止监控...")
			return nil
		},
	}

	cmd.Flags().IntVar(&debounceMs, "debounce", 500, "防抖延迟（毫秒）")
	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "token 白名单, 逗号分隔 (覆盖配置)")
	cmd.Flags().StringVar(&tokensFile, "tokens-file", "", "token 白名单文件, 每行一个地址")

	return cmd
}

func viewCmd() *cobra.Command {
	var port int
	var watchPath string
	var tokens []string
	var tokensFile string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "启动 Web UI 可视化交易图",
		Long: `启动一个本地 Web 服务器，提供交互式的 token-pool 交易图可视化界面。

特性：
  - 交互式力导向图（缩放、拖拽、点击）
  - 节点搜索和按协议着色
  - 邻域分析（点击节点高亮相连的池子和 token）
  - 调用统计面板
  - 配合 --watch 时 trace 变更后页面自动刷新

示例：
  tgraph view                    # 使用配置中的端口
  tgraph view -p 3000            # 指定端口
  tgraph view --watch trace.txt  # 同时监控 trace 文件`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = Cfg.Web.Port
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			server := web.NewServer(db, port, zap.L())

			if watchPath != "" {
				w, err := newTraceWatcher(watchPath, db, tokens, tokensFile, Cfg.Watch.DebounceMs, func(run *storage.Run) {
					server.Notify(run.ID)
				})
				if err != nil {
					return err
				}
				defer w.Stop()

				if _, statErr := os.Stat(w.Path()); statErr == nil {
					if _, err := w.Trigger(context.Background()); err != nil {
						return fmt.Errorf("初始分析失败: %w", err)
					}
				}
				w.Start()
				fmt.Printf("监控文件: %s\n", w.Path())
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("🌐 打开 http://localhost:%d 查看交易图, 按 Ctrl+C 停止\n", port)
			return server.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "服务器端口")
	cmd.Flags().StringVar(&watchPath, "watch", "", "同时监控的 trace 文件")
	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "token 白名单, 逗号分隔 (覆盖配置)")
	cmd.Flags().StringVar(&tokensFile, "tokens-file", "", "token 白名单文件, 每行一个地址")

	return cmd
}
