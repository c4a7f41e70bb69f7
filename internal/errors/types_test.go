package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLensError(t *testing.T) {
	err := NewLensError(ErrorTypeTransport, SeverityHigh, "TEST_ERROR", "测试错误")

	assert.NotNil(t, err)
	assert.Equal(t, ErrorTypeTransport, err.Type)
	assert.Equal(t, SeverityHigh, err.Severity)
	assert.Equal(t, "TEST_ERROR", err.Code)
	assert.Equal(t, "测试错误", err.Message)
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrapError(t *testing.T) {
	originalErr := errors.New("原始错误")
	wrappedErr := WrapError(originalErr, ErrorTypeConfig, SeverityMedium, "WRAPPED_ERROR", "包装错误")

	assert.Equal(t, ErrorTypeConfig, wrappedErr.Type)
	assert.Equal(t, originalErr, wrappedErr.Cause)
	assert.Contains(t, wrappedErr.Error(), "原始错误")
}

func TestLensError_Error(t *testing.T) {
	// 没有原因的错误
	err := NewLensError(ErrorTypeValidation, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息", err.Error())

	// 有原因的错误
	wrappedErr := WrapError(errors.New("原始错误"), ErrorTypeValidation, SeverityLow, "TEST_CODE", "测试消息")
	assert.Equal(t, "[TEST_CODE] 测试消息: 原始错误", wrappedErr.Error())
}

func TestLensError_Unwrap(t *testing.T) {
	originalErr := errors.New("dial tcp: connection refused")
	err := NewTransportError("0xabc", originalErr)

	assert.Equal(t, originalErr, err.Unwrap())
	assert.True(t, errors.Is(err, originalErr))

	standalone := NewNotFoundError("0xabc")
	assert.Nil(t, standalone.Unwrap())
}

func TestLensError_WithContext(t *testing.T) {
	err := NewDecodeMismatch("ERC20", "topic数量不匹配")
	err.WithContext("topics", 4)

	assert.Equal(t, "ERC20", err.Context["interface"])
	assert.Equal(t, 4, err.Context["topics"])
	assert.Equal(t, "registry", err.Component)
}

func TestLensError_WithTxHash(t *testing.T) {
	txHash := "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	err := NewNotFoundError(txHash)

	assert.NotNil(t, err.TxHash)
	assert.Equal(t, txHash, *err.TxHash)
	assert.Equal(t, "fetcher", err.Component)
}

func TestIsType(t *testing.T) {
	notFound := NewNotFoundError("0x01")
	transport := NewTransportError("0x01", errors.New("timeout"))
	wrapped := fmt.Errorf("查询失败: %w", notFound)

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsTransport(notFound))
	assert.True(t, IsTransport(transport))
	assert.True(t, IsValidation(NewValidationError("交易哈希不能为空")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestPriceUnavailable(t *testing.T) {
	cause := errors.New("status 404")
	err := NewPriceUnavailable("0xToken", cause)

	assert.Equal(t, ErrorTypePriceUnavailable, err.Type)
	assert.Equal(t, "0xToken", err.Context["address"])
	assert.True(t, errors.Is(err, cause))
}

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrorTypeNotFound, "NotFound"},
		{ErrorTypeTransport, "Transport"},
		{ErrorTypeDecodeMismatch, "DecodeMismatch"},
		{ErrorTypePriceUnavailable, "PriceUnavailable"},
		{ErrorTypeOutput, "Output"},
		{ErrorType(999), "Unknown(999)"}, // 未知类型
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.errorType.String())
	}
}

func TestErrorSeverity_String(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		expected string
	}{
		{SeverityLow, "Low"},
		{SeverityMedium, "Medium"},
		{SeverityHigh, "High"},
		{SeverityCritical, "Critical"},
		{ErrorSeverity(999), "Unknown(999)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.severity.String())
	}
}

func TestErrorStats_RecordError(t *testing.T) {
	stats := NewErrorStats()

	stats.RecordError(NewNotFoundError("0x01"))
	stats.RecordError(NewNotFoundError("0x02"))
	stats.RecordError(NewTransportError("0x03", errors.New("eof")))
	stats.RecordError(errors.New("plain"))
	stats.RecordError(nil)

	snapshot := stats.Snapshot()
	assert.Equal(t, 4, snapshot["total_errors"])

	byType := snapshot["errors_by_type"].(map[string]int)
	assert.Equal(t, 2, byType["NotFound"])
	assert.Equal(t, 1, byType["Transport"])
	assert.Equal(t, 1, byType["Unknown"])
	assert.Equal(t, "plain", snapshot["last_error"])
}

// 基准测试
func BenchmarkNewLensError(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewLensError(ErrorTypeTransport, SeverityMedium, "BENCH_ERROR", "基准测试错误")
	}
}

func BenchmarkErrorStats_RecordError(b *testing.B) {
	stats := NewErrorStats()
	err := NewNotFoundError("0x01")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stats.RecordError(err)
	}
}
