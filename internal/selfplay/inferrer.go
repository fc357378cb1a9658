package selfplay

import (
	"math"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
)

// Inference 为一次推理结果，PlayIndex 对应提交请求时的编号。
type Inference struct {
	PlayIndex  int
	Prediction float64
}

type pendingRequest struct {
	point     dataset.Point
	playIndex int
}

// Inferrer 按模型类型缓存推理请求，每轮对每个非空缓冲只调用一次模型。
// 不是并发安全的，每个 worker 持有自己的实例。
type Inferrer struct {
	models  *model.Set
	data    dataset.Dataset
	pending [model.NumTypes][]pendingRequest
	calls   int
}

// NewInferrer 创建推理调度器。
func NewInferrer(models *model.Set, data dataset.Dataset) *Inferrer {
	return &Inferrer{models: models, data: data}
}

// PutRequest 将 barIndex 处的特征加入 t 对应的缓冲。
func (inf *Inferrer) PutRequest(playIndex int, t model.Type, barIndex int) {
	idx := t.Index()
	inf.pending[idx] = append(inf.pending[idx], pendingRequest{
		point:     inf.data[barIndex].Point,
		playIndex: playIndex,
	})
}

// FulfillAllRequests 批量推理并清空全部缓冲。
func (inf *Inferrer) FulfillAllRequests() []Inference {
	out := make([]Inference, 0, inf.Pending())
	points := make([]dataset.Point, 0)
	for _, t := range model.AllTypes() {
		reqs := inf.pending[t.Index()]
		if len(reqs) == 0 {
			continue
		}
		points = points[:0]
		for _, r := range reqs {
			points = append(points, r.point)
		}
		preds := inf.call(t, points)
		for i, r := range reqs {
			out = append(out, Inference{PlayIndex: r.playIndex, Prediction: preds[i]})
		}
	}
	inf.Clear()
	return out
}

// Infer 同步推理单个请求。
func (inf *Inferrer) Infer(t model.Type, barIndex int) float64 {
	return inf.call(t, []dataset.Point{inf.data[barIndex].Point})[0]
}

// 模型返回的预测条数不符时，缺失部分以 NaN 补齐，对应的对局会被作废。
func (inf *Inferrer) call(t model.Type, points []dataset.Point) []float64 {
	inf.calls++
	preds := inf.models.Model(t).Infer(points)
	if len(preds) == len(points) {
		return preds
	}
	fixed := make([]float64, len(points))
	for i := range fixed {
		if i < len(preds) {
			fixed[i] = preds[i]
		} else {
			fixed[i] = math.NaN()
		}
	}
	return fixed
}

// Pending 返回尚未处理的请求数。
func (inf *Inferrer) Pending() int {
	n := 0
	for i := range inf.pending {
		n += len(inf.pending[i])
	}
	return n
}

// Clear 丢弃全部缓冲的请求。
func (inf *Inferrer) Clear() {
	for i := range inf.pending {
		inf.pending[i] = inf.pending[i][:0]
	}
}

// Calls 返回累计的模型调用次数。
func (inf *Inferrer) Calls() int {
	return inf.calls
}
