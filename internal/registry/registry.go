package registry

import (
	"bytes"
	"embed"
	"fmt"
	"os"

	lenserrors "txlens/internal/errors"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 内置接口名称
const (
	InterfaceERC20         = "ERC20"
	InterfaceUniswapV2Pair = "UniswapV2Pair"
	InterfaceUniswapV3Pool = "UniswapV3Pool"
)

//go:embed abi/*.json
var builtinABIs embed.FS

// builtinOrder 内置接口及其ABI文件，顺序即解码优先级
var builtinOrder = []struct {
	name string
	file string
}{
	{InterfaceERC20, "abi/erc20.json"},
	{InterfaceUniswapV2Pair, "abi/uniswap_v2_pair.json"},
	{InterfaceUniswapV3Pool, "abi/uniswap_v3_pool.json"},
}

// Decoder 可尝试解码日志的接口
type Decoder interface {
	Name() string
	TryDecode(log models.RawLog) (*models.DecodedEvent, error)
}

// Registry 有序的接口注册表，构建后不再修改
type Registry struct {
	decoders []Decoder
}

// New 使用给定顺序创建注册表
func New(decoders ...Decoder) *Registry {
	list := make([]Decoder, len(decoders))
	copy(list, decoders)
	return &Registry{decoders: list}
}

// NewDefault 使用内置ABI创建注册表
func NewDefault() (*Registry, error) {
	return Load(nil)
}

// Load 加载内置接口，overrides中的文件路径替换同名接口的内置ABI
func Load(overrides map[string]string) (*Registry, error) {
	decoders := make([]Decoder, 0, len(builtinOrder))

	for _, entry := range builtinOrder {
		var (
			data []byte
			err  error
		)
		if path, ok := overrides[entry.name]; ok && path != "" {
			data, err = os.ReadFile(path)
		} else {
			data, err = builtinABIs.ReadFile(entry.file)
		}
		if err != nil {
			return nil, fmt.Errorf("读取接口 %s 的ABI失败: %w", entry.name, err)
		}

		iface, err := NewInterface(entry.name, data)
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, iface)
	}

	for name := range overrides {
		if !isBuiltin(name) {
			return nil, fmt.Errorf("未知的接口名称: %s", name)
		}
	}

	return New(decoders...), nil
}

func isBuiltin(name string) bool {
	for _, entry := range builtinOrder {
		if entry.name == name {
			return true
		}
	}
	return false
}

// Decoders 返回按优先级排列的解码器
func (r *Registry) Decoders() []Decoder {
	list := make([]Decoder, len(r.decoders))
	copy(list, r.decoders)
	return list
}

// Names 返回接口名称列表
func (r *Registry) Names() []string {
	names := make([]string, len(r.decoders))
	for i, d := range r.decoders {
		names[i] = d.Name()
	}
	return names
}

// Len 注册的接口数量
func (r *Registry) Len() int {
	return len(r.decoders)
}

// Interface 基于合约ABI的事件解码表
type Interface struct {
	name string
	abi  abi.ABI
}

// NewInterface 解析ABI JSON
func NewInterface(name string, abiJSON []byte) (*Interface, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("解析接口 %s 的ABI失败: %w", name, err)
	}
	return &Interface{name: name, abi: parsed}, nil
}

// Name 接口名称
func (i *Interface) Name() string {
	return i.name
}

// TryDecode 尝试解码日志，失败时返回DecodeMismatch
func (i *Interface) TryDecode(log models.RawLog) (*models.DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, lenserrors.NewDecodeMismatch(i.name, "日志没有topic")
	}

	event, err := i.abi.EventByID(log.Topics[0])
	if err != nil || event.Anonymous {
		return nil, lenserrors.NewDecodeMismatch(i.name, "未找到匹配的事件签名").
			WithContext("topic0", log.Topics[0].Hex())
	}

	// indexed参数数量必须与topic数量一致，例如ERC721的Transfer有3个indexed参数
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, lenserrors.NewDecodeMismatch(i.name, "topic数量与indexed参数不一致").
			WithContext("event", event.Sig).
			WithContext("topics", len(log.Topics))
	}

	dataArgs := event.Inputs.NonIndexed()
	nonIndexed, err := dataArgs.Unpack(log.Data)
	if err != nil {
		mismatch := lenserrors.NewDecodeMismatch(i.name, "data解码失败").WithContext("event", event.Sig)
		mismatch.Cause = err
		return nil, mismatch
	}
	// Unpack忽略多余的字节，重新编码后必须与原data完全一致
	if packed, err := dataArgs.Pack(nonIndexed...); err != nil || !bytes.Equal(packed, log.Data) {
		return nil, lenserrors.NewDecodeMismatch(i.name, "data与非indexed参数不完全匹配").
			WithContext("event", event.Sig).
			WithContext("data_len", len(log.Data))
	}

	args := make([]interface{}, 0, len(event.Inputs))
	inputs := make([]models.EventInput, 0, len(event.Inputs))
	topicIdx, dataIdx := 1, 0

	for _, input := range event.Inputs {
		inputs = append(inputs, models.EventInput{
			Name:    input.Name,
			Type:    input.Type.String(),
			Indexed: input.Indexed,
		})

		if input.Indexed {
			value, err := parseTopic(input, log.Topics[topicIdx])
			if err != nil {
				mismatch := lenserrors.NewDecodeMismatch(i.name, "topic解码失败").WithContext("event", event.Sig)
				mismatch.Cause = err
				return nil, mismatch
			}
			args = append(args, value)
			topicIdx++
			continue
		}

		args = append(args, nonIndexed[dataIdx])
		dataIdx++
	}

	return &models.DecodedEvent{
		Name:      event.RawName,
		Signature: event.Sig,
		Topic:     event.ID,
		Interface: i.name,
		Inputs:    inputs,
		Args:      args,
	}, nil
}

// parseTopic 解码单个indexed参数，逐个解析避免同名参数互相覆盖
func parseTopic(input abi.Argument, topic common.Hash) (interface{}, error) {
	out := make(map[string]interface{}, 1)
	if err := abi.ParseTopicsIntoMap(out, abi.Arguments{input}, []common.Hash{topic}); err != nil {
		return nil, err
	}
	return out[input.Name], nil
}
