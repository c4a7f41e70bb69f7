// Package registrytest 构造测试用的原始日志
package registrytest

import (
	"math/big"

	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// 常用事件签名哈希
var (
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	SwapV2Topic   = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	SyncTopic     = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	SwapV3Topic   = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
)

var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	uint112Type, _ = abi.NewType("uint112", "", nil)
	uint160Type, _ = abi.NewType("uint160", "", nil)
	uint128Type, _ = abi.NewType("uint128", "", nil)
	int256Type, _  = abi.NewType("int256", "", nil)
	int24Type, _   = abi.NewType("int24", "", nil)
)

// AddressTopic 地址左填充为topic
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func pack(types []abi.Type, values ...interface{}) []byte {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	data, err := args.Pack(values...)
	if err != nil {
		panic(err)
	}
	return data
}

// TransferLog ERC20 Transfer日志
func TransferLog(token, from, to common.Address, amount *big.Int) models.RawLog {
	return models.RawLog{
		Address: token,
		Topics:  []common.Hash{TransferTopic, AddressTopic(from), AddressTopic(to)},
		Data:    pack([]abi.Type{uint256Type}, amount),
	}
}

// ApprovalLog ERC20 Approval日志
func ApprovalLog(token, owner, spender common.Address, amount *big.Int) models.RawLog {
	return models.RawLog{
		Address: token,
		Topics:  []common.Hash{ApprovalTopic, AddressTopic(owner), AddressTopic(spender)},
		Data:    pack([]abi.Type{uint256Type}, amount),
	}
}

// ERC721TransferLog NFT Transfer日志（tokenId为indexed，data为空）
func ERC721TransferLog(token, from, to common.Address, tokenID *big.Int) models.RawLog {
	return models.RawLog{
		Address: token,
		Topics: []common.Hash{
			TransferTopic,
			AddressTopic(from),
			AddressTopic(to),
			common.BigToHash(tokenID),
		},
	}
}

// SwapV2Log UniswapV2 Swap日志
func SwapV2Log(pair, sender, to common.Address, amount0In, amount1In, amount0Out, amount1Out *big.Int) models.RawLog {
	return models.RawLog{
		Address: pair,
		Topics:  []common.Hash{SwapV2Topic, AddressTopic(sender), AddressTopic(to)},
		Data: pack([]abi.Type{uint256Type, uint256Type, uint256Type, uint256Type},
			amount0In, amount1In, amount0Out, amount1Out),
	}
}

// SyncLog UniswapV2 Sync日志
func SyncLog(pair common.Address, reserve0, reserve1 *big.Int) models.RawLog {
	return models.RawLog{
		Address: pair,
		Topics:  []common.Hash{SyncTopic},
		Data:    pack([]abi.Type{uint112Type, uint112Type}, reserve0, reserve1),
	}
}

// SwapV3Log UniswapV3 Swap日志
func SwapV3Log(pool, sender, recipient common.Address, amount0, amount1, sqrtPriceX96, liquidity, tick *big.Int) models.RawLog {
	return models.RawLog{
		Address: pool,
		Topics:  []common.Hash{SwapV3Topic, AddressTopic(sender), AddressTopic(recipient)},
		Data: pack([]abi.Type{int256Type, int256Type, uint160Type, uint128Type, int24Type},
			amount0, amount1, sqrtPriceX96, liquidity, tick),
	}
}

// UnknownLog 没有任何接口能识别的日志
func UnknownLog(addr common.Address) models.RawLog {
	return models.RawLog{
		Address: addr,
		Topics:  []common.Hash{crypto.Keccak256Hash([]byte("Deposit(address,uint256)")), AddressTopic(addr)},
		Data:    pack([]abi.Type{uint256Type}, big.NewInt(1)),
	}
}
