package model

import (
	"math/rand/v2"

	"trades-selfplay/internal/dataset"
)

// RandomModel 为不学习的基线策略，预测值在 ±1 间均匀选择。
type RandomModel struct{}

// NewRandomModel 创建随机模型。
func NewRandomModel() *RandomModel {
	return &RandomModel{}
}

// Infer 对每个点独立返回 +1 或 -1。
func (m *RandomModel) Infer(points []dataset.Point) []float64 {
	out := make([]float64, len(points))
	for i := range out {
		if rand.IntN(2) == 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

// Train 不做任何事。
func (m *RandomModel) Train([]Sample) error { return nil }

// Save 不做任何事，随机模型没有参数。
func (m *RandomModel) Save(string) error { return nil }

// Load 不做任何事。
func (m *RandomModel) Load(string) error { return nil }

func (m *RandomModel) Params() string { return `{"kind":"random"}` }

func (m *RandomModel) Loss() float64 { return 0 }
