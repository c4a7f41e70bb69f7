// Package app 按配置组装查询会话
package app

import (
	"context"
	"fmt"

	"txlens/internal/classifier"
	"txlens/internal/config"
	"txlens/internal/decoder"
	lenserrors "txlens/internal/errors"
	"txlens/internal/fetcher"
	"txlens/internal/output"
	"txlens/internal/pricing"
	"txlens/internal/registry"
	"txlens/internal/session"

	"github.com/sirupsen/logrus"
)

// App 组装好的组件
type App struct {
	Session  *session.Session
	Registry *registry.Registry
	Output   output.Output

	fetcher *fetcher.Fetcher
	logger  *logrus.Logger
}

// New 连接节点并创建会话
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	reg, err := registry.Load(cfg.Registry.ABIFiles)
	if err != nil {
		return nil, fmt.Errorf("加载合约接口失败: %w", err)
	}
	logger.Infof("已加载合约接口: %v", reg.Names())

	f, err := fetcher.Dial(ctx, cfg.Node, logger)
	if err != nil {
		return nil, err
	}

	out, err := output.NewOutput(cfg.Output, logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("创建输出器失败: %w", err)
	}

	var aggregator session.PriceAggregator
	if cfg.Pricing.Enable {
		aggregator = pricing.NewAggregator(pricing.NewCoinGeckoClient(cfg.Pricing), cfg.Pricing.MaxConcurrency, logger)
	} else {
		logger.Info("价格查询已关闭")
	}

	sess := session.New(f, decoder.NewLogDecoder(reg, logger), aggregator, logger,
		session.WithRouterDetector(classifier.NewRouterDetector(cfg.Registry.RouterAddresses)),
		session.WithOutput(out),
		session.WithErrorHandler(lenserrors.NewErrorHandler(logger)),
	)

	return &App{
		Session:  sess,
		Registry: reg,
		Output:   out,
		fetcher:  f,
		logger:   logger,
	}, nil
}

// Close 等待后台任务结束后关闭输出和节点连接
func (a *App) Close() error {
	a.Session.Wait()

	var err error
	if a.Output != nil {
		err = a.Output.Close()
	}
	a.fetcher.Close()
	return err
}
