package position

import (
	"errors"
	"math"
	"testing"

	"trades-selfplay/internal/dataset"
)

var testInstrument = InstrumentID{Index: 0, Symbol: "ES"}

func bar(ts int64, price float64) dataset.Bar {
	return dataset.Bar{Timestamp: ts, MidPrice: price}
}

func mustOrder(t *testing.T, p *Position, size int) {
	t.Helper()
	if err := p.OnOrder(Order{InstrumentID: testInstrument, Size: size}); err != nil {
		t.Fatalf("OnOrder returned error: %v", err)
	}
}

func TestPosition_WorkedExample(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 20, Fee: 1.5})

	mustOrder(t, p, 1)
	mustOrder(t, p, 1)
	mustOrder(t, p, -2)

	if !p.OnBar(bar(1, 100)) || !p.OnBar(bar(2, 101)) {
		t.Fatalf("expected both opening orders to fill")
	}
	if p.Position() != 2 || math.Abs(p.AveragePrice()-100.5) > 1e-9 {
		t.Fatalf("unexpected state position=%d avg=%v", p.Position(), p.AveragePrice())
	}

	if !p.OnBar(bar(3, 102)) {
		t.Fatalf("expected closing order to fill")
	}
	if p.Position() != 0 || p.AveragePrice() != 0 {
		t.Fatalf("expected flat position with zero average, got %d @ %v", p.Position(), p.AveragePrice())
	}
	if math.Abs(p.RealizedProfit()-57.0) > 1e-6 {
		t.Fatalf("expected realized profit 57.0, got %v", p.RealizedProfit())
	}
	last, ok := p.LastRealizedProfit()
	if !ok || last.Timestamp != 3 {
		t.Fatalf("unexpected last profit %+v", last)
	}
	wantVolume := 20.0 * (100 + 101 + 2*102)
	if math.Abs(p.TradedVolumeUSD()-wantVolume) > 1e-9 {
		t.Fatalf("expected traded volume %v, got %v", wantVolume, p.TradedVolumeUSD())
	}
}

func TestPosition_OneOrderPerBarFIFO(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 1})
	mustOrder(t, p, 3)
	mustOrder(t, p, -1)
	mustOrder(t, p, 2)

	if p.OnBar(bar(0, 10)); p.Position() != 3 || p.PendingOrders() != 2 {
		t.Fatalf("first bar should fill only the first order: pos=%d pending=%d", p.Position(), p.PendingOrders())
	}
	if p.OnBar(bar(1, 11)); p.Position() != 2 || p.PendingOrders() != 1 {
		t.Fatalf("second bar should fill only the second order: pos=%d pending=%d", p.Position(), p.PendingOrders())
	}
	if p.OnBar(bar(2, 12)); p.Position() != 4 || p.PendingOrders() != 0 {
		t.Fatalf("third bar should fill the third order: pos=%d pending=%d", p.Position(), p.PendingOrders())
	}
	if p.OnBar(bar(3, 13)) {
		t.Fatalf("expected no trade on empty queue")
	}
}

func TestPosition_PartialCloseKeepsAverage(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 10, Fee: 1})
	mustOrder(t, p, -3)
	mustOrder(t, p, 1)
	p.OnBar(bar(0, 50))
	p.OnBar(bar(1, 48))

	if p.Position() != -2 || p.AveragePrice() != 50 {
		t.Fatalf("unexpected state position=%d avg=%v", p.Position(), p.AveragePrice())
	}
	// 空头 1 手，50 -> 48，盈利 10*1*2 - 1。
	if math.Abs(p.RealizedProfit()-19) > 1e-9 {
		t.Fatalf("expected profit 19, got %v", p.RealizedProfit())
	}
}

func TestPosition_Flip(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 2, Fee: 0.5})
	mustOrder(t, p, 2)
	mustOrder(t, p, -5)
	p.OnBar(bar(0, 100))
	p.OnBar(bar(1, 110))

	if p.Position() != -3 {
		t.Fatalf("expected flipped position -3, got %d", p.Position())
	}
	if p.AveragePrice() != 110 {
		t.Fatalf("expected average price at flip fill 110, got %v", p.AveragePrice())
	}
	want := 2.0*2*(110-100) - 0.5*2
	if math.Abs(p.RealizedProfit()-want) > 1e-9 {
		t.Fatalf("expected profit %v, got %v", want, p.RealizedProfit())
	}
	if p.NumRealizedProfits() != 1 {
		t.Fatalf("expected a single profit record, got %d", p.NumRealizedProfits())
	}
}

func TestPosition_AveragePriceZeroWhenFlat(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 1, Fee: 0.1})
	sizes := []int{1, -1, -2, 1, 1, 3, -1, -2, 2, -2}
	for i, size := range sizes {
		mustOrder(t, p, size)
		p.OnBar(bar(int64(i), 100+float64(i%3)))
		if p.Position() == 0 && p.AveragePrice() != 0 {
			t.Fatalf("step %d: average price %v while flat", i, p.AveragePrice())
		}
	}
}

func TestPosition_InstrumentMismatch(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 1})
	err := p.OnOrder(Order{InstrumentID: InstrumentID{Index: 1, Symbol: "NQ"}, Size: 1})
	if !errors.Is(err, ErrInstrumentMismatch) {
		t.Fatalf("expected ErrInstrumentMismatch, got %v", err)
	}
	if p.PendingOrders() != 0 {
		t.Fatalf("mismatched order must not be queued")
	}
}

func TestPosition_Summarize(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 1})
	if s := p.Summarize(); s.Side != "flat" || s.Symbol != "ES" {
		t.Fatalf("unexpected summary %+v", s)
	}
	mustOrder(t, p, -2)
	p.OnBar(bar(0, 10))
	if s := p.Summarize(); s.Side != "short" || s.Size != -2 || s.AveragePrice != 10 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestPosition_ProfitsSinceAndRunningTotal(t *testing.T) {
	p := New(testInstrument, InstrumentSpec{Multiplier: 1, Fee: 0.5})
	var sum float64
	for i := 0; i < 6; i++ {
		mustOrder(t, p, 1)
		mustOrder(t, p, -1)
		p.OnBar(bar(int64(2*i), 100))
		p.OnBar(bar(int64(2*i+1), 100+float64(i)))
		sum += float64(i) - 0.5
	}

	if math.Abs(p.RealizedProfit()-sum) > 1e-9 {
		t.Fatalf("running total %v does not match %v", p.RealizedProfit(), sum)
	}
	tail := p.ProfitsSince(4)
	if len(tail) != 2 || tail[0].Timestamp != 9 || tail[1].Timestamp != 11 {
		t.Fatalf("unexpected tail %+v", tail)
	}
	if got := p.ProfitsSince(6); got != nil {
		t.Fatalf("expected no profits past the end, got %+v", got)
	}
	if got := p.ProfitsSince(-1); len(got) != 6 {
		t.Fatalf("expected all profits for negative offset, got %d", len(got))
	}
}
