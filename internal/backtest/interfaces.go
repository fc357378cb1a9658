package backtest

import (
	"context"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/position"
)

// BarProvider 按时间顺序提供行情。
type BarProvider interface {
	Next(ctx context.Context) (dataset.Bar, bool, error)
}

// Strategy 根据当前 bar 决定是否下单。
type Strategy interface {
	TradeDecision(bar dataset.Bar) (position.Order, bool)
}
