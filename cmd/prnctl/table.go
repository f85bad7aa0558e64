package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

const maxReasonWidth = 60

var itemHeaders = table.Row{"#", "PRN", "Status", "Attempts", "Amount", "Details"}

func renderItems(items []domain.ItemRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(itemHeaders)
	for i, item := range items {
		tw.AppendRow(table.Row{
			i + 1,
			item.Identifier,
			item.Status.Label(),
			item.AttemptCount,
			amount(item),
			text.Trim(item.ErrorMessage, maxReasonWidth),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

func renderSummary(summary domain.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Count"})
	for _, row := range []struct {
		label string
		value int
	}{
		{"Total", summary.Total},
		{"Paid", summary.Paid},
		{"Unpaid", summary.Unpaid},
		{"Invalid", summary.Invalid},
		{"Unknown", summary.Unknown},
		{"Error", summary.Error},
		{"Pending", summary.Pending},
		{"Retries", summary.TotalRetries},
	} {
		tw.AppendRow(table.Row{row.label, strconv.Itoa(row.value)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return tw.Render()
}

func amount(item domain.ItemRecord) string {
	if item.Details == nil || item.Details.Amount == "" {
		return "-"
	}
	if item.Details.Currency == "" {
		return item.Details.Amount
	}
	return item.Details.Amount + " " + item.Details.Currency
}
