package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// TransferEventName 代币转账事件名称
const TransferEventName = "Transfer"

// EventInput 事件参数描述
type EventInput struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

// DecodedEvent 解码后的事件
type DecodedEvent struct {
	Name      string        `json:"name"`
	Signature string        `json:"signature"`
	Topic     common.Hash   `json:"topic"`
	Interface string        `json:"interface"` // 匹配到的接口名称
	Inputs    []EventInput  `json:"inputs"`
	Args      []interface{} `json:"args"` // 与Inputs一一对应
}

// IsTransfer 是否为代币转账事件
func (e *DecodedEvent) IsTransfer() bool {
	return e != nil && e.Name == TransferEventName
}

// Arg 按位置获取参数值
func (e *DecodedEvent) Arg(index int) (interface{}, bool) {
	if e == nil || index < 0 || index >= len(e.Args) {
		return nil, false
	}
	return e.Args[index], true
}

// DecodedLog 原始日志及其解码结果
type DecodedLog struct {
	RawLog
	Event *DecodedEvent `json:"decoded_event"`
}

// IsTransfer 是否为已解码的转账日志
func (l DecodedLog) IsTransfer() bool {
	return l.Event.IsTransfer()
}

// LookupResult 单次查询结果
type LookupResult struct {
	Entry      HistoryEntry `json:"entry"`
	Logs       []DecodedLog `json:"logs"`
	Generation uint64       `json:"generation"`
	ViaRouter  bool         `json:"via_router"`
}

// LookupRecord 输出到外部的查询记录
type LookupRecord struct {
	Kind       string        `json:"kind"` // lookup / prices
	TxHash     string        `json:"tx_hash"`
	Generation uint64        `json:"generation"`
	Entry      *HistoryEntry `json:"entry,omitempty"`
	Logs       []DecodedLog  `json:"logs,omitempty"`
	Prices     TokenPriceMap `json:"prices,omitempty"`
}
