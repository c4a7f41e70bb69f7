package render

import (
	"time"

	"txlens/pkg/models"
)

// LookupView 单条查询的展示模型
type LookupView struct {
	TxHash          string        `json:"tx_hash"`
	Classification  string        `json:"classification"`
	Status          uint64        `json:"status"`
	BlockNumber     string        `json:"block_number"`
	From            string        `json:"from"`
	To              *string       `json:"to"`
	ContractAddress *string       `json:"contract_address"`
	GasUsed         string        `json:"gas_used"`
	Transfers       []TransferRow `json:"transfers"`
	Logs            []LogRow      `json:"logs"`
	LookedUpAt      time.Time     `json:"looked_up_at"`
}

// TransferRow 有价格的转账行
type TransferRow struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

// LogRow 已解码日志行
type LogRow struct {
	Index     uint     `json:"index"`
	Address   string   `json:"address"`
	Interface string   `json:"interface"`
	Name      string   `json:"name"`
	Signature string   `json:"signature"`
	Args      []ArgRow `json:"args"`
}

// ArgRow 事件参数
type ArgRow struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// BuildView 组装展示模型，只有存在价格的Transfer日志才生成转账行
func BuildView(entry models.HistoryEntry, logs []models.DecodedLog, prices models.TokenPriceMap) LookupView {
	view := LookupView{
		Classification: entry.Classification.String(),
		LookedUpAt:     entry.LookedUpAt,
		Transfers:      []TransferRow{},
		Logs:           make([]LogRow, 0, len(logs)),
	}

	if r := entry.Receipt; r != nil {
		view.TxHash = r.TxHash.Hex()
		view.Status = r.Status
		view.BlockNumber = FormatGas(r.BlockNumber)
		view.From = r.From.Hex()
		view.To = optionalAddress(r.To)
		view.ContractAddress = optionalAddress(r.ContractAddress)
		view.GasUsed = FormatGas(r.GasUsed) + " Wei"
	}

	for _, log := range logs {
		if log.Event == nil {
			continue
		}

		if log.IsTransfer() {
			price, hasPrice := prices[log.Address.Hex()]
			amount, hasAmount := TransferAmount(log.Event)
			if hasPrice && hasAmount {
				view.Transfers = append(view.Transfers, TransferRow{
					Token:  log.Address.Hex(),
					Amount: FormatTokenAmount(amount, DefaultTokenDecimals),
					Price:  price + "USD",
				})
			}
		}

		row := LogRow{
			Index:     log.LogIndex,
			Address:   log.Address.Hex(),
			Interface: log.Event.Interface,
			Name:      log.Event.Name,
			Signature: log.Event.Signature,
			Args:      make([]ArgRow, 0, len(log.Event.Inputs)),
		}
		for i, input := range log.Event.Inputs {
			value, _ := log.Event.Arg(i)
			row.Args = append(row.Args, ArgRow{
				Name:  input.Name,
				Type:  input.Type,
				Value: FormatArgument(value),
			})
		}
		view.Logs = append(view.Logs, row)
	}

	return view
}

// BuildHistory 组装全部历史的展示模型
// 最后一条使用当前已解码日志和价格，更早的条目用decode重新解码其回执日志且不带价格
func BuildHistory(history []models.HistoryEntry, current []models.DecodedLog, prices models.TokenPriceMap,
	decode func([]models.RawLog) []models.DecodedLog) []LookupView {
	views := make([]LookupView, 0, len(history))
	for i, entry := range history {
		if i == len(history)-1 {
			views = append(views, BuildView(entry, current, prices))
			continue
		}
		var logs []models.DecodedLog
		if decode != nil && entry.Receipt != nil {
			logs = decode(entry.Receipt.Logs)
		}
		views = append(views, BuildView(entry, logs, nil))
	}
	return views
}
