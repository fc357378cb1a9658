package selfplay

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
)

const minDatasetLen = 10

var (
	// ErrDatasetTooShort 数据集条数不足以开始一局。
	ErrDatasetTooShort = errors.New("selfplay: 数据集过短")
	// ErrNoFiniteStart 从随机起点向后扫描直到数据末尾都没有有效特征。
	ErrNoFiniteStart = errors.New("selfplay: 找不到有效的起始点")
)

// PlayConfig 为单局模拟的经济参数。
type PlayConfig struct {
	FeePerContractUSD     float64
	Multiplier            float64
	UtilityPenaltyBps     float64
	MaxPlayDurationInBars int
}

// InferenceRequest 请求对某根 bar 用指定模型推理。
type InferenceRequest struct {
	BarIndex int
	Type     model.Type
}

// Play 为一局模拟：在起点按 trainedType 入场，每根 bar 询问平仓模型是否继续持有。
type Play struct {
	cfg         PlayConfig
	data        dataset.Dataset
	trainedType model.Type
	closingType model.Type
	start       int
	current     int
	finished    bool
	discarded   bool
}

// NewPlay 在 [0, len-10) 中随机选取起点，并向后跳过无效特征。
func NewPlay(cfg PlayConfig, data dataset.Dataset, trainedType model.Type, rng *rand.Rand) (*Play, error) {
	if len(data) <= minDatasetLen {
		return nil, fmt.Errorf("%w: %d 条", ErrDatasetTooShort, len(data))
	}
	start := rng.IntN(len(data) - minDatasetLen)
	return newPlayAt(cfg, data, trainedType, start)
}

func newPlayAt(cfg PlayConfig, data dataset.Dataset, trainedType model.Type, start int) (*Play, error) {
	for start < len(data) && !data[start].Point.IsFinite() {
		start++
	}
	if start >= len(data) {
		return nil, ErrNoFiniteStart
	}
	return &Play{
		cfg:         cfg,
		data:        data,
		trainedType: trainedType,
		closingType: trainedType.Closing(),
		start:       start,
		current:     start + 1,
	}, nil
}

// AdvanceToInference 返回下一次推理请求；超过持有上限或数据耗尽时结束本局并返回 false。
func (p *Play) AdvanceToInference() (InferenceRequest, bool) {
	for {
		if p.finished || p.expired() {
			p.finished = true
			return InferenceRequest{}, false
		}
		if p.data[p.current].Point.IsFinite() {
			return InferenceRequest{BarIndex: p.current, Type: p.closingType}, true
		}
		p.current++
	}
}

func (p *Play) expired() bool {
	return p.current >= len(p.data) || p.current-p.start >= p.cfg.MaxPlayDurationInBars
}

// AdvanceWithInference 效用为正则继续持有，否则结束。NaN 会使本局作废。
func (p *Play) AdvanceWithInference(utility float64) {
	if p.finished {
		return
	}
	switch {
	case math.IsNaN(utility):
		p.finished = true
		p.discarded = true
	case utility > 0:
		p.current++
	default:
		p.finished = true
	}
}

// Utility 以基点表示的往返收益，扣除手续费与固定惩罚。
func (p *Play) Utility() float64 {
	startBar := p.data[p.start]
	closeBar := p.data[min(p.current, len(p.data)-1)]

	priceReturn := closeBar.MidPrice - startBar.MidPrice
	fee := 0.0
	if p.trainedType.Action == model.ActionOpening {
		fee = 2 * p.cfg.FeePerContractUSD
	}
	pnl := priceReturn*p.trainedType.Side.Sign()*p.cfg.Multiplier - fee
	return pnl*10000/(startBar.MidPrice*p.cfg.Multiplier) - p.cfg.UtilityPenaltyBps
}

// Sample 返回起点特征与本局效用；作废或效用非有限时返回 false。
func (p *Play) Sample() (model.Sample, bool) {
	if !p.finished || p.discarded {
		return model.Sample{}, false
	}
	u := p.Utility()
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return model.Sample{}, false
	}
	return model.Sample{Point: p.data[p.start].Point, Utility: u}, true
}

// Length 返回已经历的 bar 数。
func (p *Play) Length() int {
	return p.current - p.start
}

func (p *Play) Finished() bool { return p.finished }

func (p *Play) Discarded() bool { return p.discarded }

func (p *Play) TrainedType() model.Type { return p.trainedType }

func (p *Play) Start() int { return p.start }

func (p *Play) Current() int { return p.current }
