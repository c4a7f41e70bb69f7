package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"txlens/internal/config"
	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
)

// 记录类型
const (
	KindLookup = "lookup"
	KindPrices = "prices"
)

// Output 查询记录输出接口
type Output interface {
	WriteLookup(record *models.LookupRecord) error
	Close() error
}

// NewOutput 根据配置创建输出器
func NewOutput(cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		return NoneOutput{}, nil
	}

	switch cfg.Format {
	case "", "none":
		return NoneOutput{}, nil
	case "console":
		return NewConsoleOutput(os.Stdout), nil
	case "kafka":
		if cfg.Kafka == nil {
			return nil, fmt.Errorf("kafka输出缺少配置")
		}
		return NewKafkaOutput(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", cfg.Format)
	}
}

// NoneOutput 丢弃所有记录
type NoneOutput struct{}

// WriteLookup 不做任何处理
func (NoneOutput) WriteLookup(*models.LookupRecord) error { return nil }

// Close 不做任何处理
func (NoneOutput) Close() error { return nil }

// ConsoleOutput 每条记录输出一行JSON
type ConsoleOutput struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewConsoleOutput 创建控制台输出器
func NewConsoleOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{writer: w}
}

// WriteLookup 写入查询记录
func (o *ConsoleOutput) WriteLookup(record *models.LookupRecord) error {
	if record == nil {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化查询记录失败: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.writer.Write(data); err != nil {
		return fmt.Errorf("写入查询记录失败: %w", err)
	}
	return nil
}

// Close 控制台无需关闭
func (o *ConsoleOutput) Close() error {
	return nil
}
