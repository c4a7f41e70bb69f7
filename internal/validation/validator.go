package validation

import (
	"fmt"
	"regexp"
	"strings"

	lenserrors "txlens/internal/errors"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var hashRegex = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")

// Validator 节点回执校验器
type Validator struct {
	logger *logrus.Logger
	rules  []ReceiptRule
}

// ReceiptRule 回执校验规则
// 返回error表示回执不可用，返回的字符串为警告
type ReceiptRule interface {
	Name() string
	Check(requested string, receipt *models.Receipt) (warnings []string, err error)
}

// ValidationResult 校验结果
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Errors   []*lenserrors.LensError `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	DataType string                  `json:"data_type"`
}

// NewValidator 创建校验器并注册默认规则
func NewValidator(logger *logrus.Logger) *Validator {
	v := &Validator{logger: logger}
	v.AddRule(hashMatchRule{})
	v.AddRule(statusRule{})
	v.AddRule(logIndexRule{})
	return v
}

// AddRule 添加校验规则
func (v *Validator) AddRule(rule ReceiptRule) {
	v.rules = append(v.rules, rule)
	v.logger.Debugf("已注册校验规则: %s", rule.Name())
}

// ValidateReceipt 校验节点返回的回执
func (v *Validator) ValidateReceipt(requested string, receipt *models.Receipt) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		DataType: "receipt",
	}
	if receipt == nil {
		result.Valid = false
		result.Errors = append(result.Errors, invalid("EMPTY_RECEIPT", "回执为空", requested))
		return result
	}

	for _, rule := range v.rules {
		warnings, err := rule.Check(requested, receipt)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, invalid("RECEIPT_RULE_FAILED", err.Error(), requested).
				WithContext("rule", rule.Name()))
		}
	}
	return result
}

// IsValidHash 是否为32字节十六进制哈希
func IsValidHash(hash string) bool {
	return hashRegex.MatchString(hash)
}

func invalid(code, message, txHash string) *lenserrors.LensError {
	return lenserrors.NewLensError(lenserrors.ErrorTypeValidation, lenserrors.SeverityMedium, code, message).
		WithComponent("validation").
		WithTxHash(txHash)
}

// hashMatchRule 回执哈希必须与请求的哈希一致
type hashMatchRule struct{}

func (hashMatchRule) Name() string { return "hash_match" }

func (hashMatchRule) Check(requested string, receipt *models.Receipt) ([]string, error) {
	if receipt.TxHash == (common.Hash{}) {
		return []string{"回执缺少transactionHash"}, nil
	}
	if !IsValidHash(requested) {
		return nil, nil
	}
	if !strings.EqualFold(receipt.TxHash.Hex(), requested) {
		return nil, fmt.Errorf("回执哈希 %s 与请求的哈希不一致", receipt.TxHash.Hex())
	}
	return nil, nil
}

// statusRule 状态只能是0或1
type statusRule struct{}

func (statusRule) Name() string { return "status" }

func (statusRule) Check(_ string, receipt *models.Receipt) ([]string, error) {
	if receipt.Status > 1 {
		return []string{fmt.Sprintf("未知的回执状态: %d", receipt.Status)}, nil
	}
	return nil, nil
}

// logIndexRule 日志序号应严格递增
type logIndexRule struct{}

func (logIndexRule) Name() string { return "log_index" }

func (logIndexRule) Check(_ string, receipt *models.Receipt) ([]string, error) {
	for i := 1; i < len(receipt.Logs); i++ {
		if receipt.Logs[i].LogIndex <= receipt.Logs[i-1].LogIndex {
			return []string{fmt.Sprintf("日志序号不递增: %d -> %d",
				receipt.Logs[i-1].LogIndex, receipt.Logs[i].LogIndex)}, nil
		}
	}
	return nil, nil
}
