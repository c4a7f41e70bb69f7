package errors

import (
	stderrors "errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorCallback 错误回调函数
type ErrorCallback func(err *LensError)

// ErrorHandler 错误处理器：按严重级别记录日志并统计
type ErrorHandler struct {
	logger    *logrus.Logger
	stats     *ErrorStats
	mu        sync.RWMutex
	callbacks []ErrorCallback
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
		stats:  NewErrorStats(),
	}
}

// HandleError 处理错误，原样返回err
func (eh *ErrorHandler) HandleError(err error) error {
	if err == nil {
		return nil
	}
	eh.stats.RecordError(err)

	var le *LensError
	if !stderrors.As(err, &le) {
		eh.logger.WithError(err).Error("未分类错误")
		return err
	}

	entry := eh.logger.WithFields(logrus.Fields{
		"error_type": le.Type.String(),
		"code":       le.Code,
		"component":  le.Component,
	})
	if le.TxHash != nil {
		entry = entry.WithField("tx_hash", *le.TxHash)
	}
	for k, v := range le.Context {
		entry = entry.WithField(k, v)
	}

	switch le.Severity {
	case SeverityLow:
		entry.Debug(le.Error())
	case SeverityMedium:
		entry.Warn(le.Error())
	default:
		entry.Error(le.Error())
	}

	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, cb := range callbacks {
		cb(le)
	}
	return err
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// GetStats 获取错误统计
func (eh *ErrorHandler) GetStats() *ErrorStats {
	return eh.stats
}
