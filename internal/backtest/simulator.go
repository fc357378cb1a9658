package backtest

import (
	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/position"
)

// Simulator 按 bar 记录盯市权益曲线：已实现盈亏加上持仓的浮动盈亏。
type Simulator struct {
	equityHistory []float64
}

func NewSimulator() *Simulator {
	return &Simulator{}
}

// Advance 在 bar 收盘后以中间价重新估值全部仓位。
func (s *Simulator) Advance(bar dataset.Bar, positions []*position.Position) {
	equity := 0.0
	for _, pos := range positions {
		equity += pos.RealizedProfit() + unrealized(pos, bar.MidPrice)
	}
	s.equityHistory = append(s.equityHistory, equity)
}

func unrealized(pos *position.Position, price float64) float64 {
	if pos.Position() == 0 {
		return 0
	}
	return float64(pos.Position()) * (price - pos.AveragePrice()) * pos.Spec().Multiplier
}

// EquityHistory 返回权益曲线的副本。
func (s *Simulator) EquityHistory() []float64 {
	return append([]float64(nil), s.equityHistory...)
}
