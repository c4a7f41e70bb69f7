package decoder

import (
	"fmt"

	lenserrors "txlens/internal/errors"
	"txlens/internal/registry"
	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
)

// LogDecoder 日志解码器
type LogDecoder struct {
	logger   *logrus.Logger
	decoders []registry.Decoder // 按注册表顺序尝试
}

// NewLogDecoder 创建新的日志解码器
func NewLogDecoder(reg *registry.Registry, logger *logrus.Logger) *LogDecoder {
	return &LogDecoder{
		logger:   logger,
		decoders: reg.Decoders(),
	}
}

// Decode 解码一组日志，只保留能被识别的日志，顺序与输入一致。
// 整组解码出现意外错误时返回空结果而不是向上传播。
func (d *LogDecoder) Decode(logs []models.RawLog) (result []models.DecodedLog) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("logs", len(logs)).Warnf("解码日志集合失败，丢弃全部解码结果: %v", r)
			result = []models.DecodedLog{}
		}
	}()

	result = make([]models.DecodedLog, 0, len(logs))
	for _, log := range logs {
		event := d.decodeLog(log)
		if event == nil {
			continue
		}
		result = append(result, models.DecodedLog{
			RawLog: copyRawLog(log),
			Event:  event,
		})
	}

	d.logger.Debugf("解码完成: %d/%d 条日志被识别", len(result), len(logs))
	return result
}

// decodeLog 依次尝试每个接口，第一个成功的获胜
func (d *LogDecoder) decodeLog(log models.RawLog) *models.DecodedEvent {
	for _, dec := range d.decoders {
		event, err := dec.TryDecode(log)
		if err == nil && event != nil {
			return event
		}
		if err != nil && !lenserrors.IsType(err, lenserrors.ErrorTypeDecodeMismatch) {
			// 非预期错误同样视为不匹配
			d.logger.Debugf("接口 %s 解码日志出错: %v", dec.Name(), err)
		}
	}

	topic := "none"
	if len(log.Topics) > 0 {
		topic = log.Topics[0].Hex()
	}
	d.logger.Debugf("日志未被识别: address=%s topic0=%s", log.Address.Hex(), topic)
	return nil
}

// copyRawLog 复制原始日志，解码结果与原始回执互不影响
func copyRawLog(log models.RawLog) models.RawLog {
	out := log
	if log.Topics != nil {
		out.Topics = append(log.Topics[:0:0], log.Topics...)
	}
	if log.Data != nil {
		out.Data = append(log.Data[:0:0], log.Data...)
	}
	return out
}

// String 调试输出
func (d *LogDecoder) String() string {
	names := make([]string, len(d.decoders))
	for i, dec := range d.decoders {
		names[i] = dec.Name()
	}
	return fmt.Sprintf("LogDecoder%v", names)
}
