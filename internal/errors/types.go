package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 回执相关错误
	ErrorTypeNotFound ErrorType = iota
	ErrorTypeTransport

	// 解码与价格（组件内部消化，不向上传播）
	ErrorTypeDecodeMismatch
	ErrorTypePriceUnavailable

	// 系统相关错误
	ErrorTypeValidation
	ErrorTypeConfig
	ErrorTypeOutput
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// LensError 自定义错误类型
type LensError struct {
	Type      ErrorType              `json:"type"`
	Severity  ErrorSeverity          `json:"severity"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"cause,omitempty"`
	Component string                 `json:"component"`
	TxHash    *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *LensError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *LensError) Unwrap() error {
	return e.Cause
}

// WithContext 添加上下文信息
func (e *LensError) WithContext(key string, value interface{}) *LensError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithTxHash 添加交易哈希
func (e *LensError) WithTxHash(txHash string) *LensError {
	e.TxHash = &txHash
	return e
}

// WithComponent 添加组件名称
func (e *LensError) WithComponent(component string) *LensError {
	e.Component = component
	return e
}

// NewLensError 创建新的错误
func NewLensError(errorType ErrorType, severity ErrorSeverity, code, message string) *LensError {
	return &LensError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *LensError {
	e := NewLensError(errorType, severity, code, message)
	e.Cause = err
	return e
}

// NewNotFoundError 回执不存在（未上链或哈希无效）
func NewNotFoundError(txHash string) *LensError {
	return NewLensError(ErrorTypeNotFound, SeverityMedium, "RECEIPT_NOT_FOUND", "交易回执不存在").
		WithTxHash(txHash).
		WithComponent("fetcher")
}

// NewTransportError 节点请求失败
func NewTransportError(txHash string, err error) *LensError {
	return WrapError(err, ErrorTypeTransport, SeverityHigh, "TRANSPORT_FAILED", "节点请求失败").
		WithTxHash(txHash).
		WithComponent("fetcher")
}

// NewDecodeMismatch 接口无法解码日志
func NewDecodeMismatch(iface string, reason string) *LensError {
	return NewLensError(ErrorTypeDecodeMismatch, SeverityLow, "DECODE_MISMATCH", reason).
		WithComponent("registry").
		WithContext("interface", iface)
}

// NewPriceUnavailable 价格服务无该地址数据
func NewPriceUnavailable(address string, err error) *LensError {
	e := NewLensError(ErrorTypePriceUnavailable, SeverityLow, "PRICE_UNAVAILABLE", "无可用价格").
		WithComponent("pricing").
		WithContext("address", address)
	e.Cause = err
	return e
}

// NewValidationError 输入校验失败
func NewValidationError(message string) *LensError {
	return NewLensError(ErrorTypeValidation, SeverityLow, "VALIDATION_FAILED", message)
}

// IsType 判断错误链中最外层的LensError是否为指定类型
func IsType(err error, errorType ErrorType) bool {
	var le *LensError
	if stderrors.As(err, &le) {
		return le.Type == errorType
	}
	return false
}

// IsNotFound 是否为回执不存在错误
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsTransport 是否为传输错误
func IsTransport(err error) bool {
	return IsType(err, ErrorTypeTransport)
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNotFound:         "NotFound",
	ErrorTypeTransport:        "Transport",
	ErrorTypeDecodeMismatch:   "DecodeMismatch",
	ErrorTypePriceUnavailable: "PriceUnavailable",
	ErrorTypeValidation:       "Validation",
	ErrorTypeConfig:           "Config",
	ErrorTypeOutput:           "Output",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计
type ErrorStats struct {
	mu            sync.RWMutex
	TotalErrors   int            `json:"total_errors"`
	ErrorsByType  map[string]int `json:"errors_by_type"`
	LastError     string         `json:"last_error,omitempty"`
	LastErrorTime time.Time      `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType: make(map[string]int),
	}
}

// RecordError 记录错误，非LensError按Unknown统计
func (es *ErrorStats) RecordError(err error) {
	if err == nil {
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	typeName := "Unknown"
	var le *LensError
	if stderrors.As(err, &le) {
		typeName = le.Type.String()
	}

	es.TotalErrors++
	es.ErrorsByType[typeName]++
	es.LastError = err.Error()
	es.LastErrorTime = time.Now()
}

// Snapshot 获取统计快照
func (es *ErrorStats) Snapshot() map[string]interface{} {
	es.mu.RLock()
	defer es.mu.RUnlock()

	byType := make(map[string]int, len(es.ErrorsByType))
	for k, v := range es.ErrorsByType {
		byType[k] = v
	}

	return map[string]interface{}{
		"total_errors":    es.TotalErrors,
		"errors_by_type":  byType,
		"last_error":      es.LastError,
		"last_error_time": es.LastErrorTime,
	}
}
