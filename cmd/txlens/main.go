package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"txlens/internal/app"
	"txlens/internal/config"
	"txlens/internal/logging"
	"txlens/internal/render"
)

var (
	configFile string
	verbose    bool
	noColor    bool
	nodeURL    string
	noPrices   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "txlens",
		Short: "以太坊交易回执查询工具",
		Long:  `按交易哈希查询回执，识别交易类型，解码ERC20和Uniswap事件日志并附上代币现价`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	lookupCmd := &cobra.Command{
		Use:   "lookup <tx-hash>...",
		Short: "查询一笔或多笔交易",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLookup,
	}
	lookupCmd.Flags().BoolVar(&noColor, "no-color", false, "关闭彩色输出")
	lookupCmd.Flags().StringVar(&nodeURL, "node-url", "", "覆盖配置中的节点地址")
	lookupCmd.Flags().BoolVar(&noPrices, "no-prices", false, "不查询代币价格")

	rootCmd.AddCommand(lookupCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if nodeURL != "" {
		cfg.Node.URL = nodeURL
		cfg.Node.APIKey = ""
	}
	if noPrices {
		cfg.Pricing.Enable = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("关闭资源失败: %v", err)
		}
	}()

	failed := 0
	for _, hash := range args {
		if _, err := a.Session.Lookup(ctx, hash); err != nil {
			failed++
			logger.WithFields(logrus.Fields{"tx_hash": hash}).Errorf("查询失败: %v", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	a.Session.Wait()

	view := a.Session.Snapshot()
	views := render.BuildHistory(view.History, view.Logs, view.Prices, a.Session.Decoder().Decode)
	render.NewTextRenderer(cmd.OutOrStdout(), noColor).RenderAll(views)

	if failed == len(args) {
		return fmt.Errorf("%d 笔交易全部查询失败", failed)
	}
	return nil
}
