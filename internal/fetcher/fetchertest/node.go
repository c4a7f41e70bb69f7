// Package fetchertest 提供测试用的JSON-RPC节点
package fetchertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Node 只实现eth_getTransactionReceipt的假节点
type Node struct {
	*httptest.Server

	mu       sync.Mutex
	receipts map[string]*models.Receipt
	calls    int
	fail     bool
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []string        `json:"params"`
}

// NewNode 启动假节点，调用方负责Close
func NewNode() *Node {
	n := &Node{receipts: make(map[string]*models.Receipt)}
	n.Server = httptest.NewServer(http.HandlerFunc(n.handle))
	return n
}

// AddReceipt 注册回执，按哈希（不区分大小写）返回
func (n *Node) AddReceipt(hash string, receipt *models.Receipt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts[strings.ToLower(hash)] = receipt
}

// SetFailing 让节点对所有请求返回HTTP 500
func (n *Node) SetFailing(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

// Calls 收到的RPC请求数
func (n *Node) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls++
	fail := n.fail
	var receipt *models.Receipt
	if len(req.Params) > 0 {
		receipt = n.receipts[strings.ToLower(req.Params[0])]
	}
	n.mu.Unlock()

	if fail {
		http.Error(w, "node unavailable", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}
	if req.Method != "eth_getTransactionReceipt" {
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
	} else if receipt == nil {
		resp["result"] = nil
	} else {
		resp["result"] = ReceiptJSON(receipt)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ReceiptJSON 按节点格式编码回执，nil地址编码为null
func ReceiptJSON(r *models.Receipt) map[string]interface{} {
	logs := make([]map[string]interface{}, 0, len(r.Logs))
	for _, l := range r.Logs {
		logs = append(logs, map[string]interface{}{
			"address":         l.Address,
			"topics":          l.Topics,
			"data":            hexutil.Bytes(l.Data),
			"logIndex":        hexutil.Uint(l.LogIndex),
			"transactionHash": r.TxHash,
		})
	}

	out := map[string]interface{}{
		"transactionHash": r.TxHash,
		"status":          hexutil.Uint64(r.Status),
		"from":            r.From,
		"to":              r.To,
		"contractAddress": r.ContractAddress,
		"logs":            logs,
	}
	if r.BlockNumber != nil {
		out["blockNumber"] = (*hexutil.Big)(r.BlockNumber)
	}
	if r.GasUsed != nil {
		out["gasUsed"] = (*hexutil.Big)(r.GasUsed)
	}
	return out
}
