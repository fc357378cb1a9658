package model

import "trades-selfplay/internal/dataset"

// Sample 为一条训练样本。
type Sample struct {
	Point   dataset.Point `json:"point"`
	Utility float64       `json:"utility"`
}

// Model 为预测能力的抽象。Infer 可被多个 goroutine 并发调用；Train/Save 只在所有 worker 退出后调用。
type Model interface {
	// Infer 返回与输入等长的效用预测。
	Infer(points []dataset.Point) []float64
	Train(samples []Sample) error
	Save(path string) error
	Load(path string) error
	// Params 返回参数的序列化形式。
	Params() string
	Loss() float64
}
