package backtest

import (
	"context"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/position"
)

// SliceBarProvider 以固定序列提供 bar。
type SliceBarProvider struct {
	bars  dataset.Dataset
	index int
}

func NewSliceBarProvider(bars dataset.Dataset) *SliceBarProvider {
	return &SliceBarProvider{bars: bars}
}

func (p *SliceBarProvider) Next(ctx context.Context) (dataset.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Bar{}, false, err
	}
	if p.index >= len(p.bars) {
		return dataset.Bar{}, false, nil
	}
	bar := p.bars[p.index]
	p.index++
	return bar, true, nil
}

// StrategyFunc 允许使用函数作为策略。
type StrategyFunc func(bar dataset.Bar) (position.Order, bool)

func (f StrategyFunc) TradeDecision(bar dataset.Bar) (position.Order, bool) {
	if f == nil {
		return position.Order{}, false
	}
	return f(bar)
}
