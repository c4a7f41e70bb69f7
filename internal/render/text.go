package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// TextRenderer 终端文本输出
type TextRenderer struct {
	writer  io.Writer
	noColor bool
}

// NewTextRenderer 创建文本渲染器，noColor为true时关闭颜色
func NewTextRenderer(w io.Writer, noColor bool) *TextRenderer {
	return &TextRenderer{writer: w, noColor: noColor}
}

// heading 只影响本渲染器的颜色
func (r *TextRenderer) heading(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if r.noColor {
		c.DisableColor()
	}
	return c
}

// RenderAll 依次输出所有历史查询
func (r *TextRenderer) RenderAll(views []LookupView) {
	for i := range views {
		r.Render(views[i])
	}
}

// Render 输出单条查询
func (r *TextRenderer) Render(view LookupView) {
	r.heading(color.FgCyan, color.Bold).Fprintf(r.writer, "\n=== %s ===\n", view.TxHash)

	summary := tablewriter.NewWriter(r.writer)
	summary.SetHeader([]string{"Field", "Value"})
	summary.SetAutoWrapText(false)
	summary.Append([]string{"Type", view.Classification})
	summary.Append([]string{"From", view.From})
	summary.Append([]string{"To", orNull(view.To)})
	summary.Append([]string{"Contract Address", orNull(view.ContractAddress)})
	summary.Append([]string{"Gas used", view.GasUsed})
	summary.Render()

	if len(view.Transfers) > 0 {
		r.heading(color.FgGreen).Fprintln(r.writer, "Token Transfers")
		transfers := tablewriter.NewWriter(r.writer)
		transfers.SetHeader([]string{"Token Address", "Amount", "Token Price"})
		transfers.SetAutoWrapText(false)
		for _, t := range view.Transfers {
			transfers.Append([]string{t.Token, t.Amount, t.Price})
		}
		transfers.Render()
	}

	if len(view.Logs) == 0 {
		fmt.Fprintln(r.writer, "No decoded logs")
		return
	}

	r.heading(color.FgYellow).Fprintln(r.writer, "Transaction Logs")
	logs := tablewriter.NewWriter(r.writer)
	logs.SetHeader([]string{"#", "Event", "Signature", "Argument", "Value"})
	logs.SetAutoWrapText(false)
	for _, l := range view.Logs {
		index := fmt.Sprintf("%d", l.Index)
		if len(l.Args) == 0 {
			logs.Append([]string{index, l.Name, l.Signature, "", ""})
			continue
		}
		for _, arg := range l.Args {
			logs.Append([]string{index, l.Name, l.Signature, arg.Name, arg.Value})
		}
	}
	logs.Render()
}
