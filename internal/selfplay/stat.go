package selfplay

import (
	"math"
	"sync/atomic"
)

// IterationStat 为跨 worker 共享的无锁统计，只保证最终一致。
type IterationStat struct {
	playLengthSum   atomic.Int64
	playLengthCount atomic.Int64
	predictionSum   atomic.Uint64
	predictionCount atomic.Int64
}

// StatSnapshot 为统计快照。
type StatSnapshot struct {
	NPlays         int64   `json:"n_plays"`
	MeanPlayLength float64 `json:"mean_play_length"`
	NPredictions   int64   `json:"n_predictions"`
	MeanPrediction float64 `json:"mean_prediction"`
}

func NewIterationStat() *IterationStat {
	return &IterationStat{}
}

// UpdatePlayLengths 记录一局结束时的长度。
func (s *IterationStat) UpdatePlayLengths(length int) {
	s.playLengthSum.Add(int64(length))
	s.playLengthCount.Add(1)
}

// UpdatePredictions 累加一次预测值，非有限值不计入。
func (s *IterationStat) UpdatePredictions(prediction float64) {
	if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		return
	}
	for {
		old := s.predictionSum.Load()
		next := math.Float64bits(math.Float64frombits(old) + prediction)
		if s.predictionSum.CompareAndSwap(old, next) {
			break
		}
	}
	s.predictionCount.Add(1)
}

// NPlays 返回已结束的对局数。
func (s *IterationStat) NPlays() int64 {
	return s.playLengthCount.Load()
}

func (s *IterationStat) MeanPlayLength() float64 {
	count := s.playLengthCount.Load()
	if count == 0 {
		return 0
	}
	return float64(s.playLengthSum.Load()) / float64(count)
}

func (s *IterationStat) MeanPrediction() float64 {
	count := s.predictionCount.Load()
	if count == 0 {
		return 0
	}
	return math.Float64frombits(s.predictionSum.Load()) / float64(count)
}

func (s *IterationStat) Snapshot() StatSnapshot {
	return StatSnapshot{
		NPlays:         s.NPlays(),
		MeanPlayLength: s.MeanPlayLength(),
		NPredictions:   s.predictionCount.Load(),
		MeanPrediction: s.MeanPrediction(),
	}
}
