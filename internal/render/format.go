package render

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultTokenDecimals 转账金额按18位精度展示
const DefaultTokenDecimals = 18

// FormatGas 以十进制展示gas
func FormatGas(gas *big.Int) string {
	if gas == nil {
		return "0"
	}
	return gas.String()
}

// FormatTokenAmount 按精度转换为小数，小数部分去掉末尾的0但至少保留一位
//
//	1000000000000000000, 18 -> "1.0"
//	1500000000000000000, 18 -> "1.5"
func FormatTokenAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		amount = new(big.Int)
	}

	sign := ""
	if amount.Sign() < 0 {
		sign = "-"
	}
	digits := new(big.Int).Abs(amount).String()
	if decimals <= 0 {
		return sign + digits + ".0"
	}

	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		frac = "0"
	}
	return sign + whole + "." + frac
}

// FormatArgument 整数类型用十进制，地址用校验和格式，字节用0x十六进制，其余按字面值
func FormatArgument(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	}

	// bytesN解码为定长字节数组
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		buf := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)
		return hexutil.Encode(buf)
	}
	return fmt.Sprint(value)
}

// TransferAmount 取Transfer事件第3个参数作为金额
func TransferAmount(event *models.DecodedEvent) (*big.Int, bool) {
	arg, ok := event.Arg(2)
	if !ok {
		return nil, false
	}
	amount, ok := arg.(*big.Int)
	return amount, ok && amount != nil
}

func optionalAddress(addr *common.Address) *string {
	if addr == nil {
		return nil
	}
	s := addr.Hex()
	return &s
}

func orNull(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
