package classifier

import (
	"math/big"

	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// Classify 根据回执形态判断交易类型
//   - 没有目标地址: 合约创建
//   - 有目标地址且没有合约地址: 转账
//   - 有目标地址且有合约地址: 合约交互
func Classify(receipt *models.Receipt) models.Classification {
	if !receipt.HasDestination() {
		return models.ClassificationContractCreation
	}
	if !receipt.HasContractAddress() {
		return models.ClassificationTransfer
	}
	return models.ClassificationContractInteraction
}

// RouterDetector 识别发往DEX路由合约的交易
type RouterDetector struct {
	routers map[common.Address]struct{}
}

// NewRouterDetector 创建路由识别器，忽略非法地址
func NewRouterDetector(addresses []string) *RouterDetector {
	routers := make(map[common.Address]struct{}, len(addresses))
	for _, addr := range addresses {
		if !common.IsHexAddress(addr) {
			continue
		}
		routers[common.HexToAddress(addr)] = struct{}{}
	}
	return &RouterDetector{routers: routers}
}

// IsRouter 目标地址是否为已知路由
func (d *RouterDetector) IsRouter(receipt *models.Receipt) bool {
	if d == nil || !receipt.HasDestination() {
		return false
	}
	_, ok := d.routers[*receipt.To]
	return ok
}

// SingleWordValues 提取data恰好为一个32字节字的日志数值，用于诊断路由交易
func SingleWordValues(receipt *models.Receipt) []*big.Int {
	if receipt == nil {
		return nil
	}
	var values []*big.Int
	for _, log := range receipt.Logs {
		if len(log.Data) == common.HashLength {
			values = append(values, new(big.Int).SetBytes(log.Data))
		}
	}
	return values
}
