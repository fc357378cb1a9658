package backtest

import (
	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
	"trades-selfplay/internal/position"
)

var (
	openingLong  = model.Type{Side: model.SideLong, Action: model.ActionOpening}
	openingShort = model.Type{Side: model.SideShort, Action: model.ActionOpening}
)

// BasicStrategy 空仓时比较多空开仓模型，持仓时用对应方向的平仓模型判断是否离场。
type BasicStrategy struct {
	position *position.Position
	models   *model.Set
}

// NewBasicStrategy 创建基础策略，position 与回测引擎共享。
func NewBasicStrategy(pos *position.Position, models *model.Set) *BasicStrategy {
	return &BasicStrategy{position: pos, models: models}
}

// TradeDecision 无效特征的 bar 不做决策。
func (s *BasicStrategy) TradeDecision(bar dataset.Bar) (position.Order, bool) {
	if !bar.Point.IsFinite() {
		return position.Order{}, false
	}
	id := s.position.InstrumentID()
	current := s.position.Position()

	if current == 0 {
		long := s.infer(openingLong, bar.Point)
		short := s.infer(openingShort, bar.Point)
		switch {
		case long > 0 && long >= short:
			return position.Order{InstrumentID: id, Size: 1}, true
		case short > 0:
			return position.Order{InstrumentID: id, Size: -1}, true
		default:
			return position.Order{}, false
		}
	}

	side := model.SideLong
	if current < 0 {
		side = model.SideShort
	}
	// 效用表示继续持有的价值。
	if s.infer(model.Type{Side: side, Action: model.ActionClosing}, bar.Point) > 0 {
		return position.Order{}, false
	}
	return position.Order{InstrumentID: id, Size: -current}, true
}

func (s *BasicStrategy) infer(t model.Type, p dataset.Point) float64 {
	preds := s.models.Model(t).Infer([]dataset.Point{p})
	if len(preds) == 0 {
		return 0
	}
	return preds[0]
}
