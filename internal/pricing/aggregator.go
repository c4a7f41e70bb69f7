package pricing

import (
	"context"
	"sync"

	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Aggregator 为转账日志的代币地址汇总价格
type Aggregator struct {
	source         PriceSource
	maxConcurrency int
	logger         *logrus.Logger
}

// NewAggregator 创建价格汇总器，maxConcurrency<=0时不限制并发
func NewAggregator(source PriceSource, maxConcurrency int, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		source:         source,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// TransferAddresses 按首次出现顺序返回转账日志的去重地址
func TransferAddresses(logs []models.DecodedLog) []string {
	seen := make(map[string]struct{})
	var addresses []string
	for _, log := range logs {
		if !log.IsTransfer() {
			continue
		}
		addr := log.Address.Hex()
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses
}

// AggregatePrices 并发查询每个地址的价格，失败的地址直接省略
func (a *Aggregator) AggregatePrices(ctx context.Context, logs []models.DecodedLog) models.TokenPriceMap {
	addresses := TransferAddresses(logs)
	prices := make(models.TokenPriceMap, len(addresses))
	if len(addresses) == 0 {
		return prices
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}

	for _, addr := range addresses {
		addr := addr
		g.Go(func() error {
			price, err := a.source.CurrentPrice(gctx, addr)
			if err != nil {
				a.logger.WithField("address", addr).Debugf("价格查询失败，已省略: %v", err)
				return nil
			}
			mu.Lock()
			prices[addr] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return prices
}
