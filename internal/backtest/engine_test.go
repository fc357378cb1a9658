package backtest

import (
	"context"
	"errors"
	"math"
	"testing"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/position"
)

func priceBars(prices ...float64) dataset.Dataset {
	bars := make(dataset.Dataset, len(prices))
	for i, p := range prices {
		bars[i] = dataset.Bar{Timestamp: int64(i + 1), MidPrice: p, Point: dataset.Point{F1: 0.1}}
	}
	return bars
}

func mustPosition(t *testing.T, cfg Config) *position.Position {
	t.Helper()
	pos, err := cfg.NewPosition()
	if err != nil {
		t.Fatalf("NewPosition returned error: %v", err)
	}
	return pos
}

// scripted 按 bar 时间戳返回预设订单。
func scripted(id position.InstrumentID, sizes map[int64]int) StrategyFunc {
	return func(bar dataset.Bar) (position.Order, bool) {
		size, ok := sizes[bar.Timestamp]
		if !ok {
			return position.Order{}, false
		}
		return position.Order{InstrumentID: id, Size: size}, true
	}
}

func TestBacktester_WorkedExample(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 20, Fee: 1.5})
	strategy := scripted(pos.InstrumentID(), map[int64]int{1: 1, 2: 1, 3: -2})
	bt, err := NewBacktester(NewSliceBarProvider(priceBars(100, 101, 102, 103)), strategy, []*position.Position{pos}, nil)
	if err != nil {
		t.Fatalf("NewBacktester returned error: %v", err)
	}

	result, err := bt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Metrics.NumTrades != 1 || math.Abs(result.Metrics.TotalProfitUSD-57) > 1e-6 {
		t.Fatalf("unexpected metrics %+v", result.Metrics)
	}
	wantBps := 57 / (20.0 * (100 + 101 + 2*102)) * 10000
	if math.Abs(result.Metrics.ProfitBps-wantBps) > 1e-9 {
		t.Fatalf("expected %v bps, got %v", wantBps, result.Metrics.ProfitBps)
	}
	if result.Bars != 4 || len(result.EquityCurve) != 4 {
		t.Fatalf("unexpected bar accounting: bars=%d curve=%d", result.Bars, len(result.EquityCurve))
	}
	if result.Profits[0].Timestamp != 3 {
		t.Fatalf("expected profit at bar 3, got %d", result.Profits[0].Timestamp)
	}
}

func TestBacktester_CollectsPartialCloses(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 1})
	strategy := scripted(pos.InstrumentID(), map[int64]int{1: 2, 2: -1, 4: -1})
	bt, _ := NewBacktester(NewSliceBarProvider(priceBars(10, 11, 12, 13)), strategy, []*position.Position{pos}, nil)

	result, err := bt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Profits) != 2 {
		t.Fatalf("expected two profit records, got %d", len(result.Profits))
	}
	if result.Profits[0].Timestamp != 2 || result.Profits[1].Timestamp != 4 {
		t.Fatalf("profits must be chronological: %+v", result.Profits)
	}
	if result.Profits[0].Profit != 1 || result.Profits[1].Profit != 3 {
		t.Fatalf("unexpected profits %+v", result.Profits)
	}
}

func TestBacktester_InstrumentMismatch(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 1})
	cases := []position.InstrumentID{
		{Index: 0, Symbol: "ES"},
		{Index: 2, Symbol: "NQ"},
	}
	for _, id := range cases {
		bt, _ := NewBacktester(NewSliceBarProvider(priceBars(1, 2)), scripted(id, map[int64]int{1: 1}), []*position.Position{pos}, nil)
		if _, err := bt.Run(context.Background()); !errors.Is(err, position.ErrInstrumentMismatch) {
			t.Fatalf("expected ErrInstrumentMismatch for %v, got %v", id, err)
		}
	}
}

func TestBacktester_StopsOnCancel(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 20})
	bt, _ := NewBacktester(NewSliceBarProvider(priceBars(1, 2, 3)), StrategyFunc(nil), []*position.Position{pos}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bt.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewBacktester_Validates(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 20})
	if _, err := NewBacktester(nil, StrategyFunc(nil), []*position.Position{pos}, nil); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewBacktester(NewSliceBarProvider(nil), StrategyFunc(nil), nil, nil); err == nil {
		t.Fatalf("expected error for missing positions")
	}
	misplaced := position.New(position.InstrumentID{Index: 1, Symbol: "NQ"}, position.InstrumentSpec{Multiplier: 1})
	if _, err := NewBacktester(NewSliceBarProvider(nil), StrategyFunc(nil), []*position.Position{misplaced}, nil); err == nil {
		t.Fatalf("expected error for misplaced instrument index")
	}
}

func TestSimulator_MarksToMarket(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 20})
	_ = pos.OnOrder(position.Order{InstrumentID: pos.InstrumentID(), Size: 1})
	bars := priceBars(100, 101)
	pos.OnBar(bars[0])

	sim := NewSimulator()
	sim.Advance(bars[0], []*position.Position{pos})
	sim.Advance(bars[1], []*position.Position{pos})
	if curve := sim.EquityHistory(); len(curve) != 2 || curve[0] != 0 || curve[1] != 20 {
		t.Fatalf("unexpected equity curve %v", curve)
	}
}

func TestBacktester_MarkToMarketMetrics(t *testing.T) {
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 1})
	strategy := scripted(pos.InstrumentID(), map[int64]int{1: 1, 3: -1})
	bt, _ := NewBacktester(NewSliceBarProvider(priceBars(100, 90, 95, 95)), strategy, []*position.Position{pos}, nil)

	result, err := bt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []float64{0, -10, -5, -5}
	for i, v := range want {
		if result.EquityCurve[i] != v {
			t.Fatalf("unexpected equity curve %v", result.EquityCurve)
		}
	}
	if result.Metrics.MTMDrawdownUSD != 10 {
		t.Fatalf("expected mark-to-market drawdown 10, got %v", result.Metrics.MTMDrawdownUSD)
	}
	if result.Metrics.MaxDrawdownUSD != 5 {
		t.Fatalf("expected realized drawdown 5, got %v", result.Metrics.MaxDrawdownUSD)
	}
	if result.Metrics.FinalEquityUSD != -5 {
		t.Fatalf("expected final equity -5, got %v", result.Metrics.FinalEquityUSD)
	}
}

func TestBacktester_ManyRoundTrips(t *testing.T) {
	const n = 100000
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100
	}
	pos := mustPosition(t, Config{Symbol: "NQ", Multiplier: 1, Fee: 1})
	strategy := StrategyFunc(func(bar dataset.Bar) (position.Order, bool) {
		size := -1
		if bar.Timestamp%2 == 1 {
			size = 1
		}
		return position.Order{InstrumentID: pos.InstrumentID(), Size: size}, true
	})
	bt, _ := NewBacktester(NewSliceBarProvider(priceBars(prices...)), strategy, []*position.Position{pos}, nil)

	result, err := bt.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Metrics.NumTrades != n/2 || result.Metrics.TotalProfitUSD != -n/2 {
		t.Fatalf("unexpected metrics %+v", result.Metrics)
	}
	if result.Metrics.FinalEquityUSD != pos.RealizedProfit() {
		t.Fatalf("final equity %v does not match realized %v", result.Metrics.FinalEquityUSD, pos.RealizedProfit())
	}
}

func TestConfig_NewPositionRejectsInvalid(t *testing.T) {
	cases := []Config{
		{Multiplier: 20},
		{Symbol: "NQ"},
		{Symbol: "NQ", Multiplier: 20, Fee: -1},
	}
	for _, cfg := range cases {
		if _, err := cfg.NewPosition(); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}
