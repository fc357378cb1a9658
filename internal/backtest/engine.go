package backtest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trades-selfplay/internal/position"
)

// Result 汇总回测结果。
type Result struct {
	Metrics     Metrics            `json:"metrics"`
	Profits     []position.Profit  `json:"-"`
	EquityCurve []float64          `json:"-"`
	Positions   []position.Summary `json:"positions"`
	Bars        int                `json:"bars"`
}

// Summary 输出成交笔数与以美元、基点表示的总盈亏。
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "N trades    : %d\n", r.Metrics.NumTrades)
	fmt.Fprintf(&b, "Final profit: %f USD\n", r.Metrics.TotalProfitUSD)
	fmt.Fprintf(&b, "Final profit: %f bps\n", r.Metrics.ProfitBps)
	fmt.Fprintf(&b, "Max drawdown: %f USD\n", r.Metrics.MaxDrawdownUSD)
	fmt.Fprintf(&b, "MTM drawdown: %f USD\n", r.Metrics.MTMDrawdownUSD)
	return b.String()
}

// Backtester 逐 bar 驱动策略与仓位。
type Backtester struct {
	provider  BarProvider
	strategy  Strategy
	positions []*position.Position
	simulator *Simulator
	logger    *zap.Logger
}

// NewBacktester 构建回测引擎，positions 以 InstrumentID.Index 为下标。
func NewBacktester(provider BarProvider, strategy Strategy, positions []*position.Position, logger *zap.Logger) (*Backtester, error) {
	if provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if strategy == nil {
		return nil, fmt.Errorf("backtest: strategy 不能为空")
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("backtest: 至少需要一个仓位")
	}
	for i, pos := range positions {
		if pos.InstrumentID().Index != i {
			return nil, fmt.Errorf("backtest: 仓位 %s 的下标应为 %d", pos.InstrumentID(), i)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Backtester{
		provider:  provider,
		strategy:  strategy,
		positions: positions,
		simulator: NewSimulator(),
		logger:    logger,
	}, nil
}

// Run 执行完整回测：每根 bar 先询问策略，再让全部仓位处理队首订单。
func (b *Backtester) Run(ctx context.Context) (Result, error) {
	var (
		profits []position.Profit
		bars    int
	)
	for {
		bar, ok, err := b.provider.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		bars++

		if order, ok := b.strategy.TradeDecision(bar); ok {
			idx := order.InstrumentID.Index
			if idx < 0 || idx >= len(b.positions) {
				return Result{}, fmt.Errorf("%w: 下标 %d 越界", position.ErrInstrumentMismatch, idx)
			}
			if err := b.positions[idx].OnOrder(order); err != nil {
				return Result{}, err
			}
		}

		for _, pos := range b.positions {
			before := pos.NumRealizedProfits()
			if !pos.OnBar(bar) {
				continue
			}
			for _, p := range pos.ProfitsSince(before) {
				b.logger.Debug("已实现盈亏",
					zap.String("symbol", pos.InstrumentID().Symbol),
					zap.Int64("ts", p.Timestamp),
					zap.Float64("profit", p.Profit),
					zap.Int("position", pos.Position()),
				)
				profits = append(profits, p)
			}
		}

		b.simulator.Advance(bar, b.positions)
	}

	var volume float64
	summaries := make([]position.Summary, 0, len(b.positions))
	for _, pos := range b.positions {
		volume += pos.TradedVolumeUSD()
		summaries = append(summaries, pos.Summarize())
	}

	equity := b.simulator.EquityHistory()
	result := Result{
		Metrics:     calculateMetrics(profits, volume, equity),
		Profits:     profits,
		EquityCurve: equity,
		Positions:   summaries,
		Bars:        bars,
	}
	b.logger.Info("回测完成",
		zap.Int("bars", bars),
		zap.Int("trades", result.Metrics.NumTrades),
		zap.Float64("profit_usd", result.Metrics.TotalProfitUSD),
		zap.Float64("profit_bps", result.Metrics.ProfitBps),
		zap.Float64("mtm_drawdown_usd", result.Metrics.MTMDrawdownUSD),
	)
	return result, nil
}
