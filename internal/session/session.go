package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"txlens/internal/classifier"
	lenserrors "txlens/internal/errors"
	"txlens/internal/logging"
	"txlens/internal/output"
	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
)

// ReceiptFetcher 回执获取
type ReceiptFetcher interface {
	Fetch(ctx context.Context, hash string) (*models.Receipt, error)
}

// LogDecoder 日志解码
type LogDecoder interface {
	Decode(logs []models.RawLog) []models.DecodedLog
}

// PriceAggregator 价格汇总
type PriceAggregator interface {
	AggregatePrices(ctx context.Context, logs []models.DecodedLog) models.TokenPriceMap
}

// View 会话状态快照
type View struct {
	CurrentHash string                `json:"current_hash"`
	History     []models.HistoryEntry `json:"history"`
	Logs        []models.DecodedLog   `json:"logs"`
	Prices      models.TokenPriceMap  `json:"prices"`
	Generation  uint64                `json:"generation"`
}

// Option 会话选项
type Option func(*Session)

// WithRouterDetector 设置路由识别器
func WithRouterDetector(d *classifier.RouterDetector) Option {
	return func(s *Session) { s.router = d }
}

// WithOutput 设置查询记录输出
func WithOutput(o output.Output) Option {
	return func(s *Session) { s.output = o }
}

// WithErrorHandler 设置错误处理器
func WithErrorHandler(h *lenserrors.ErrorHandler) Option {
	return func(s *Session) { s.errors = h }
}

// WithClock 设置时间来源
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session 一次会话内的查询状态，历史只追加不修改
// 价格汇总在后台执行，只有生成它的代数仍是当前代数时结果才会被采用
type Session struct {
	fetcher    ReceiptFetcher
	decoder    LogDecoder
	aggregator PriceAggregator
	router     *classifier.RouterDetector
	output     output.Output
	errors     *lenserrors.ErrorHandler
	logger     *logrus.Logger
	now        func() time.Time

	mu          sync.RWMutex
	currentHash string
	history     []models.HistoryEntry
	logs        []models.DecodedLog
	prices      models.TokenPriceMap
	generation  uint64

	// inflight 后台价格汇总数量，受mu保护，归零时通过idle唤醒Wait
	inflight int
	idle     *sync.Cond
}

// New 创建会话，aggregator为nil时不查询价格
func New(fetcher ReceiptFetcher, decoder LogDecoder, aggregator PriceAggregator, logger *logrus.Logger, opts ...Option) *Session {
	s := &Session{
		fetcher:    fetcher,
		decoder:    decoder,
		aggregator: aggregator,
		output:     output.NoneOutput{},
		errors:     lenserrors.NewErrorHandler(logger),
		logger:     logger,
		now:        time.Now,
		history:    []models.HistoryEntry{},
		logs:       []models.DecodedLog{},
		prices:     models.TokenPriceMap{},
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup 查询一笔交易：获取回执、分类、解码、追加历史，然后在后台汇总价格
// 获取失败时历史保持不变，也不会触发价格汇总
func (s *Session) Lookup(ctx context.Context, hash string) (*models.LookupResult, error) {
	hash = strings.TrimSpace(hash)
	log := logging.NewLookupLogger(s.logger, hash)

	if hash == "" {
		return nil, s.errors.HandleError(lenserrors.NewValidationError("交易哈希不能为空").WithComponent("session"))
	}

	receipt, err := s.fetcher.Fetch(ctx, hash)
	if err != nil {
		return nil, s.errors.HandleError(err)
	}

	classification := classifier.Classify(receipt)
	viaRouter := s.router.IsRouter(receipt)
	if viaRouter {
		for _, value := range classifier.SingleWordValues(receipt) {
			log.WithField("value", value.String()).Debug("路由交易日志数值")
		}
	}

	decoded := s.decoder.Decode(receipt.Logs)
	entry := models.HistoryEntry{
		Classification: classification,
		Receipt:        receipt,
		LookedUpAt:     s.now(),
	}

	s.mu.Lock()
	history := make([]models.HistoryEntry, len(s.history), len(s.history)+1)
	copy(history, s.history)
	s.history = append(history, entry)
	s.logs = decoded
	s.prices = models.TokenPriceMap{}
	s.currentHash = hash
	s.generation++
	generation := s.generation
	if s.aggregator != nil {
		s.inflight++
	}
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"classification": classification,
		"raw_logs":       len(receipt.Logs),
		"decoded_logs":   len(decoded),
		"generation":     generation,
		"via_router":     viaRouter,
	}).Info("查询完成")

	s.emit(&models.LookupRecord{
		Kind:       output.KindLookup,
		TxHash:     hash,
		Generation: generation,
		Entry:      &entry,
		Logs:       decoded,
	})

	if s.aggregator != nil {
		go s.aggregate(context.WithoutCancel(ctx), generation, hash, decoded)
	}

	return &models.LookupResult{
		Entry:      entry,
		Logs:       decoded,
		Generation: generation,
		ViaRouter:  viaRouter,
	}, nil
}

func (s *Session) aggregate(ctx context.Context, generation uint64, hash string, logs []models.DecodedLog) {
	defer s.finish()

	prices := s.aggregator.AggregatePrices(ctx, logs)
	if !s.adopt(generation, prices) {
		s.logger.WithFields(logrus.Fields{
			"tx_hash":    hash,
			"generation": generation,
		}).Debug("丢弃过期的价格结果")
		return
	}

	s.emit(&models.LookupRecord{
		Kind:       output.KindPrices,
		TxHash:     hash,
		Generation: generation,
		Prices:     prices.Clone(),
	})
}

// adopt 仅当代数仍为当前代数时整体替换价格表
func (s *Session) adopt(generation uint64, prices models.TokenPriceMap) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.prices = prices.Clone()
	return true
}

func (s *Session) emit(record *models.LookupRecord) {
	if err := s.output.WriteLookup(record); err != nil {
		s.errors.HandleError(lenserrors.WrapError(err, lenserrors.ErrorTypeOutput, lenserrors.SeverityMedium,
			"OUTPUT_FAILED", "输出查询记录失败").WithComponent("output").WithTxHash(record.TxHash))
	}
}

func (s *Session) finish() {
	s.mu.Lock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// Wait 等待所有后台价格汇总完成，可与Lookup并发调用
func (s *Session) Wait() {
	s.mu.Lock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Snapshot 返回当前状态的副本
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]models.HistoryEntry, len(s.history))
	copy(history, s.history)
	logs := make([]models.DecodedLog, len(s.logs))
	copy(logs, s.logs)

	return View{
		CurrentHash: s.currentHash,
		History:     history,
		Logs:        logs,
		Prices:      s.prices.Clone(),
		Generation:  s.generation,
	}
}

// Stats 错误统计
func (s *Session) Stats() *lenserrors.ErrorStats {
	return s.errors.GetStats()
}

// Decoder 会话使用的日志解码器
func (s *Session) Decoder() LogDecoder {
	return s.decoder
}
