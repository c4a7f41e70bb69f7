package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Classification 交易类型
type Classification string

const (
	ClassificationContractCreation    Classification = "Contract Creation"
	ClassificationTransfer            Classification = "Transfer"
	ClassificationContractInteraction Classification = "Contract Interaction"
)

// String 返回交易类型的展示名称
func (c Classification) String() string {
	return string(c)
}

// Receipt 交易回执模型（一次查询获取一次，之后不再修改）
type Receipt struct {
	TxHash          common.Hash     `json:"tx_hash"`
	BlockNumber     *big.Int        `json:"block_number"`
	Status          uint64          `json:"status"`
	From            common.Address  `json:"from"`
	To              *common.Address `json:"to"`               // 合约创建交易为nil
	ContractAddress *common.Address `json:"contract_address"` // 未创建合约时为nil
	GasUsed         *big.Int        `json:"gas_used"`
	Logs            []RawLog        `json:"logs"`
}

// HasDestination 是否存在目标地址
func (r *Receipt) HasDestination() bool {
	return r != nil && r.To != nil
}

// HasContractAddress 是否存在创建的合约地址
func (r *Receipt) HasContractAddress() bool {
	return r != nil && r.ContractAddress != nil
}

// RawLog 原始日志
type RawLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     []byte         `json:"data"`
	LogIndex uint           `json:"log_index"`
}

// HistoryEntry 查询历史条目
type HistoryEntry struct {
	Classification Classification `json:"classification"`
	Receipt        *Receipt       `json:"receipt"`
	LookedUpAt     time.Time      `json:"looked_up_at"`
}

// TokenPriceMap 代币地址 -> 美元价格
type TokenPriceMap map[string]string

// Clone 复制价格表
func (m TokenPriceMap) Clone() TokenPriceMap {
	out := make(TokenPriceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
