package fetcher

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"txlens/internal/config"
	lenserrors "txlens/internal/errors"
	"txlens/internal/logging"
	"txlens/internal/validation"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// MethodGetReceipt 获取交易回执的RPC方法
const MethodGetReceipt = "eth_getTransactionReceipt"

// Caller JSON-RPC调用接口，*rpc.Client实现了该接口
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Fetcher 交易回执获取器，每次Fetch只发起一次RPC调用，不重试也不缓存
type Fetcher struct {
	caller    Caller
	client    *rpc.Client
	validator *validation.Validator
	logger    *logrus.Logger
	node      string
}

// New 使用已有的RPC调用方创建获取器
func New(caller Caller, logger *logrus.Logger) *Fetcher {
	return &Fetcher{caller: caller, validator: validation.NewValidator(logger), logger: logger}
}

// Dial 连接配置中的节点，超时交给HTTP传输层
func Dial(ctx context.Context, node *config.NodeConfig, logger *logrus.Logger) (*Fetcher, error) {
	httpClient := &http.Client{Timeout: node.TimeoutDuration()}
	client, err := rpc.DialOptions(ctx, node.Endpoint(), rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, lenserrors.WrapError(err, lenserrors.ErrorTypeTransport, lenserrors.SeverityHigh, "NODE_DIAL_FAILED", "连接节点失败").
			WithComponent("fetcher").
			WithContext("node", node.Name)
	}

	logging.NewRPCLogger(logger, MethodGetReceipt, node.Endpoint()).Info("节点连接已建立")

	return &Fetcher{
		caller:    client,
		client:    client,
		validator: validation.NewValidator(logger),
		logger:    logger,
		node:      logging.RedactURL(node.Endpoint()),
	}, nil
}

// Close 关闭底层连接
func (f *Fetcher) Close() {
	if f.client != nil {
		f.client.Close()
	}
}

// rpcReceipt 节点返回的回执JSON，保留types.Receipt中没有的from/to字段
type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	Status          *hexutil.Uint64 `json:"status"`
	From            common.Address  `json:"from"`
	To              *common.Address `json:"to"`
	ContractAddress *common.Address `json:"contractAddress"`
	GasUsed         *hexutil.Big    `json:"gasUsed"`
	Logs            []rpcLog        `json:"logs"`
}

type rpcLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	LogIndex hexutil.Uint   `json:"logIndex"`
}

// Fetch 按哈希获取交易回执
func (f *Fetcher) Fetch(ctx context.Context, hash string) (*models.Receipt, error) {
	var raw json.RawMessage
	if err := f.caller.CallContext(ctx, &raw, MethodGetReceipt, hash); err != nil {
		f.logger.WithFields(logrus.Fields{
			"tx_hash": hash,
			"node":    f.node,
		}).Debugf("获取回执失败: %v", err)
		return nil, lenserrors.NewTransportError(hash, err)
	}

	var receipt *rpcReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, lenserrors.NewTransportError(hash, err).WithContext("reason", "回执格式错误")
	}
	if receipt == nil {
		return nil, lenserrors.NewNotFoundError(hash)
	}

	model := receipt.toModel()
	result := f.validator.ValidateReceipt(hash, model)
	for _, warning := range result.Warnings {
		f.logger.WithField("tx_hash", hash).Debugf("回执校验警告: %s", warning)
	}
	if !result.Valid {
		return nil, lenserrors.NewTransportError(hash, result.Errors[0]).WithContext("reason", "回执校验失败")
	}
	return model, nil
}

func (r *rpcReceipt) toModel() *models.Receipt {
	receipt := &models.Receipt{
		TxHash:          r.TransactionHash,
		From:            r.From,
		To:              normalizeAddress(r.To),
		ContractAddress: normalizeAddress(r.ContractAddress),
		BlockNumber:     toBig(r.BlockNumber),
		GasUsed:         toBig(r.GasUsed),
		Logs:            make([]models.RawLog, 0, len(r.Logs)),
	}
	if r.Status != nil {
		receipt.Status = uint64(*r.Status)
	}

	for _, l := range r.Logs {
		receipt.Logs = append(receipt.Logs, models.RawLog{
			Address:  l.Address,
			Topics:   l.Topics,
			Data:     []byte(l.Data),
			LogIndex: uint(l.LogIndex),
		})
	}
	return receipt
}

// normalizeAddress 零地址视为不存在
func normalizeAddress(addr *common.Address) *common.Address {
	if addr == nil || *addr == (common.Address{}) {
		return nil
	}
	a := *addr
	return &a
}

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}
