package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-signal/internal/types"
)

// Report aggregates a replay's ledger with decimal arithmetic so repeated
// summation over long ledgers stays exact.
type Report struct {
	TotalTrades      int             `json:"total_trades"`
	FullCloses       int             `json:"full_closes"`
	PartialCloses    int             `json:"partial_closes"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	GrossProfit      decimal.Decimal `json:"gross_profit"`
	GrossLoss        decimal.Decimal `json:"gross_loss"`
	LargestWin       decimal.Decimal `json:"largest_win"`
	LargestLoss      decimal.Decimal `json:"largest_loss"`
	WinRate          float64         `json:"win_rate"`
	ReturnOnCapital  decimal.Decimal `json:"return_on_capital"`
}

// BuildReport summarizes a replay result.
func BuildReport(result *Result) Report {
	report := Report{WinRate: result.WinRate}

	for _, record := range result.TradeRecords {
		switch record.OptionType {
		case "open":
			continue
		case "fibonacci_close":
			report.PartialCloses++
		case "close":
			report.FullCloses++
		}
		report.TotalTrades++

		pnl := decimal.NewFromFloat(record.ProfitLoss)
		if record.OptionType == "close" {
			// full-close records carry the position's cumulative P&L
			report.RealizedPnL = report.RealizedPnL.Add(pnl)
			if pnl.IsPositive() {
				report.GrossProfit = report.GrossProfit.Add(pnl)
				if pnl.GreaterThan(report.LargestWin) {
					report.LargestWin = pnl
				}
			} else if pnl.IsNegative() {
				report.GrossLoss = report.GrossLoss.Add(pnl)
				if pnl.LessThan(report.LargestLoss) {
					report.LargestLoss = pnl
				}
			}
		}
	}

	if result.InitialFunds > 0 {
		report.ReturnOnCapital = decimal.NewFromFloat(result.FinalFunds).
			Sub(decimal.NewFromFloat(result.InitialFunds)).
			Div(decimal.NewFromFloat(result.InitialFunds))
	}

	return report
}

// CloseRecords filters the ledger down to realized close events.
func CloseRecords(records []types.TradeRecord) []types.TradeRecord {
	out := make([]types.TradeRecord, 0, len(records))
	for _, record := range records {
		if record.OptionType == "close" || record.OptionType == "fibonacci_close" {
			out = append(out, record)
		}
	}

	return out
}

// PnLSeries extracts the ordered per-position P&L list from the ledger, one
// entry per full close, for the Monte Carlo analyzer.
func PnLSeries(records []types.TradeRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, record := range records {
		if record.OptionType == "close" {
			out = append(out, record.ProfitLoss)
		}
	}

	return out
}
