package selfplay

import (
	"math"
	"sync/atomic"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
)

type constModel struct {
	value float64
	short bool
	calls atomic.Int64
	seen  atomic.Int64
}

func (m *constModel) Infer(points []dataset.Point) []float64 {
	m.calls.Add(1)
	m.seen.Add(int64(len(points)))
	n := len(points)
	if m.short && n > 0 {
		n--
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = m.value
	}
	return out
}

func (m *constModel) Train([]model.Sample) error { return nil }
func (m *constModel) Save(string) error          { return nil }
func (m *constModel) Load(string) error          { return nil }
func (m *constModel) Params() string             { return "{}" }
func (m *constModel) Loss() float64              { return 0 }

func constSet(value float64) (*model.Set, [model.NumTypes]*constModel) {
	var fakes [model.NumTypes]*constModel
	var models [model.NumTypes]model.Model
	for i := range fakes {
		fakes[i] = &constModel{value: value}
		models[i] = fakes[i]
	}
	return model.NewSetWithModels(0, "", models), fakes
}

// testData 生成价格线性上涨的数据集，特征随下标变化。
func testData(n int) dataset.Dataset {
	data := make(dataset.Dataset, n)
	for i := range data {
		x := float64(i)
		data[i] = dataset.Bar{
			Timestamp: int64(i) * 60_000,
			MidPrice:  1000 + x,
			Point:     dataset.Point{F1: math.Sin(x), F2: math.Cos(x / 3), F4: x / float64(n)},
		}
	}
	return data
}
