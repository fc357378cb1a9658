package selfplay

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
)

var (
	openingLong  = model.Type{Side: model.SideLong, Action: model.ActionOpening}
	openingShort = model.Type{Side: model.SideShort, Action: model.ActionOpening}
	closingLong  = model.Type{Side: model.SideLong, Action: model.ActionClosing}
)

func playCfg(maxBars int) PlayConfig {
	return PlayConfig{FeePerContractUSD: 1.5, Multiplier: 20, MaxPlayDurationInBars: maxBars}
}

func runWith(p *Play, u float64) {
	for {
		if _, ok := p.AdvanceToInference(); !ok {
			return
		}
		p.AdvanceWithInference(u)
	}
}

func TestPlay_StartsOnFinitePoint(t *testing.T) {
	data := testData(50)
	for i := 0; i < 20; i++ {
		data[i].Point = dataset.NaNPoint()
	}
	rng := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 100; i++ {
		p, err := NewPlay(playCfg(10), data, openingLong, rng)
		if err != nil {
			t.Fatalf("NewPlay returned error: %v", err)
		}
		if !data[p.Start()].Point.IsFinite() {
			t.Fatalf("play started on non-finite point %d", p.Start())
		}
		if p.Current() != p.Start()+1 {
			t.Fatalf("expected current = start+1")
		}
		if p.TrainedType().Closing() != closingLong {
			t.Fatalf("unexpected closing type")
		}
	}
}

func TestPlay_NoFiniteStart(t *testing.T) {
	data := testData(30)
	for i := 15; i < len(data); i++ {
		data[i].Point = dataset.NaNPoint()
	}
	if _, err := newPlayAt(playCfg(10), data, openingLong, 16); !errors.Is(err, ErrNoFiniteStart) {
		t.Fatalf("expected ErrNoFiniteStart, got %v", err)
	}
	if _, err := NewPlay(playCfg(10), testData(10), openingLong, rand.New(rand.NewPCG(1, 1))); !errors.Is(err, ErrDatasetTooShort) {
		t.Fatalf("expected ErrDatasetTooShort, got %v", err)
	}
}

func TestPlay_HorizonBound(t *testing.T) {
	data := testData(100)
	p, err := newPlayAt(playCfg(5), data, openingLong, 10)
	if err != nil {
		t.Fatalf("newPlayAt returned error: %v", err)
	}
	runWith(p, 1)
	if !p.Finished() {
		t.Fatalf("expected finished play")
	}
	if p.Length() != 5 {
		t.Fatalf("expected length 5, got %d", p.Length())
	}
}

func TestPlay_StopsOnNonPositiveUtility(t *testing.T) {
	p, _ := newPlayAt(playCfg(50), testData(100), openingLong, 10)
	runWith(p, 0)
	if !p.Finished() || p.Length() != 1 {
		t.Fatalf("expected play to stop after first inference, length=%d", p.Length())
	}
	if _, ok := p.Sample(); !ok {
		t.Fatalf("expected a sample")
	}
}

func TestPlay_NaNDiscards(t *testing.T) {
	p, _ := newPlayAt(playCfg(50), testData(100), openingLong, 10)
	if _, ok := p.AdvanceToInference(); !ok {
		t.Fatalf("expected inference request")
	}
	p.AdvanceWithInference(math.NaN())
	if !p.Finished() || !p.Discarded() {
		t.Fatalf("expected finished and discarded play")
	}
	if _, ok := p.AdvanceToInference(); ok {
		t.Fatalf("finished play must not request inference")
	}
	p.AdvanceWithInference(1)
	if p.Current() != 11 {
		t.Fatalf("finished play must not advance, current=%d", p.Current())
	}
	if _, ok := p.Sample(); ok {
		t.Fatalf("discarded play must not yield a sample")
	}
}

func TestPlay_SkipsNonFiniteBars(t *testing.T) {
	data := testData(100)
	data[11].Point = dataset.NaNPoint()
	data[12].Point = dataset.NaNPoint()
	p, _ := newPlayAt(playCfg(50), data, openingLong, 10)

	req, ok := p.AdvanceToInference()
	if !ok || req.BarIndex != 13 {
		t.Fatalf("expected request for bar 13, got %+v ok=%v", req, ok)
	}
	if req.Type != closingLong {
		t.Fatalf("expected closing model request, got %v", req.Type)
	}
}

func TestPlay_SkipIsBoundedByHorizon(t *testing.T) {
	data := testData(100)
	for i := 11; i < 90; i++ {
		data[i].Point = dataset.NaNPoint()
	}
	p, _ := newPlayAt(playCfg(5), data, openingLong, 10)
	if _, ok := p.AdvanceToInference(); ok {
		t.Fatalf("expected horizon to end the play")
	}
	if p.Length() != 5 {
		t.Fatalf("expected length 5, got %d", p.Length())
	}
}

func TestPlay_DatasetEndUsesLastBar(t *testing.T) {
	data := testData(20)
	p, _ := newPlayAt(playCfg(100), data, closingLong, 15)
	runWith(p, 1)
	if p.Current() != len(data) {
		t.Fatalf("expected play to run to the dataset end, current=%d", p.Current())
	}
	// 平仓模型不计手续费：(1019-1015)*20*1e4/(1015*20)。
	want := 4 * 10000 / 1015.0
	if math.Abs(p.Utility()-want) > 1e-9 {
		t.Fatalf("expected utility %v, got %v", want, p.Utility())
	}
}

func TestPlay_UtilitySign(t *testing.T) {
	data := testData(100)
	long, _ := newPlayAt(playCfg(3), data, openingLong, 10)
	short, _ := newPlayAt(playCfg(3), data, openingShort, 10)
	runWith(long, 1)
	runWith(short, 1)

	// 价格上涨 3：多头为正，空头为负，两者都扣 2*1.5 手续费。
	fee := 2 * 1.5 * 10000 / (1010 * 20.0)
	gross := 3 * 20 * 10000 / (1010 * 20.0)
	if math.Abs(long.Utility()-(gross-fee)) > 1e-9 {
		t.Fatalf("unexpected long utility %v", long.Utility())
	}
	if math.Abs(short.Utility()-(-gross-fee)) > 1e-9 {
		t.Fatalf("unexpected short utility %v", short.Utility())
	}

	flat, _ := newPlayAt(playCfg(3), dataset.Dataset(flatData(100)), openingLong, 10)
	runWith(flat, 1)
	if long.Utility() <= flat.Utility() {
		t.Fatalf("positive return must increase long utility")
	}

	penalised, _ := newPlayAt(PlayConfig{FeePerContractUSD: 1.5, Multiplier: 20, MaxPlayDurationInBars: 3, UtilityPenaltyBps: 2}, data, openingLong, 10)
	runWith(penalised, 1)
	if math.Abs(long.Utility()-penalised.Utility()-2) > 1e-9 {
		t.Fatalf("penalty should subtract a constant")
	}
}

func flatData(n int) dataset.Dataset {
	data := testData(n)
	for i := range data {
		data[i].MidPrice = 1000
	}
	return data
}
