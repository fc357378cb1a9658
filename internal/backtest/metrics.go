package backtest

import (
	"math"

	"trades-selfplay/internal/position"
)

// Metrics 记录回测绩效指标。
type Metrics struct {
	NumTrades       int     `json:"num_trades"`
	TotalProfitUSD  float64 `json:"total_profit_usd"`
	TradedVolumeUSD float64 `json:"traded_volume_usd"`
	ProfitBps       float64 `json:"profit_bps"`
	MaxDrawdownUSD  float64 `json:"max_drawdown_usd"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	WinRate         float64 `json:"win_rate"`
	// 以下基于逐 bar 盯市权益曲线。
	FinalEquityUSD float64 `json:"final_equity_usd"`
	MTMDrawdownUSD float64 `json:"mtm_drawdown_usd"`
	BarSharpeRatio float64 `json:"bar_sharpe_ratio"`
}

// calculateMetrics 由逐笔已实现盈亏与盯市权益曲线计算绩效。
func calculateMetrics(profits []position.Profit, tradedVolumeUSD float64, equity []float64) Metrics {
	m := Metrics{NumTrades: len(profits), TradedVolumeUSD: tradedVolumeUSD}
	if len(equity) > 0 {
		m.FinalEquityUSD = equity[len(equity)-1]
		m.MTMDrawdownUSD = computeDrawdown(append([]float64{0}, equity...))
		m.BarSharpeRatio = computeSharpe(diffs(equity))
	}
	if len(profits) == 0 {
		return m
	}

	values := make([]float64, len(profits))
	wins := 0
	for i, p := range profits {
		values[i] = p.Profit
		m.TotalProfitUSD += p.Profit
		if p.Profit > 0 {
			wins++
		}
	}
	if tradedVolumeUSD > 0 {
		m.ProfitBps = m.TotalProfitUSD / tradedVolumeUSD * 10000
	}
	m.MaxDrawdownUSD = computeDrawdown(cumulative(values))
	m.SharpeRatio = computeSharpe(values)
	m.WinRate = float64(wins) / float64(len(profits))
	return m
}

func cumulative(values []float64) []float64 {
	out := make([]float64, len(values)+1)
	for i, v := range values {
		out[i+1] = out[i] + v
	}
	return out
}

// diffs 返回相邻元素之差。
func diffs(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// computeDrawdown 返回累计盈亏曲线从峰值回落的最大金额。
func computeDrawdown(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	maxDD := 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// computeSharpe 为逐笔收益的均值与样本标准差之比，不做年化。
func computeSharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}
