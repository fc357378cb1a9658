package position

import (
	"errors"
	"fmt"

	"trades-selfplay/internal/dataset"
)

// ErrInstrumentMismatch 表示订单的标的与仓位不一致，属于调用方的编程错误。
var ErrInstrumentMismatch = errors.New("position: 订单标的不匹配")

// InstrumentID 标识一个交易标的。
type InstrumentID struct {
	Index  int    `json:"index"`
	Symbol string `json:"symbol"`
}

func (id InstrumentID) String() string {
	return fmt.Sprintf("%d:%s", id.Index, id.Symbol)
}

// InstrumentSpec 描述合约乘数与每手手续费。
type InstrumentSpec struct {
	Multiplier float64 `json:"multiplier"`
	Fee        float64 `json:"fee"`
}

// Order 为带符号的下单手数，正数买入，负数卖出。
type Order struct {
	InstrumentID InstrumentID `json:"instrument_id"`
	Size         int          `json:"size"`
}

// Profit 为一次（部分）平仓产生的已实现盈亏。
type Profit struct {
	Timestamp int64   `json:"timestamp"`
	Profit    float64 `json:"profit"`
}

// Position 维护单一标的的仓位，订单按先进先出、每根 bar 最多成交一笔。
type Position struct {
	instrumentID    InstrumentID
	spec            InstrumentSpec
	orders          []Order
	averagePrice    float64
	position        int
	realizedProfits []Profit
	realizedProfit  float64
	tradedVolumeUSD float64
}

// New 创建空仓位。
func New(id InstrumentID, spec InstrumentSpec) *Position {
	return &Position{instrumentID: id, spec: spec}
}

// OnOrder 将订单加入队尾，不立即成交。
func (p *Position) OnOrder(order Order) error {
	if order.InstrumentID != p.instrumentID {
		return fmt.Errorf("%w: 期望 %s，收到 %s", ErrInstrumentMismatch, p.instrumentID, order.InstrumentID)
	}
	p.orders = append(p.orders, order)
	return nil
}

// OnBar 以 bar 的中间价成交队首订单，有订单成交时返回 true。
func (p *Position) OnBar(bar dataset.Bar) bool {
	if len(p.orders) == 0 {
		return false
	}
	order := p.orders[0]
	p.orders[0] = Order{}
	p.orders = p.orders[1:]

	price := bar.MidPrice
	p.tradedVolumeUSD += float64(abs(order.Size)) * price * p.spec.Multiplier

	if order.Size == 0 {
		return true
	}

	if p.position != 0 && sign(order.Size) != sign(p.position) {
		p.close(order, price, bar.Timestamp)
		return true
	}

	before := abs(p.position)
	size := abs(order.Size)
	p.averagePrice = (p.averagePrice*float64(before) + price*float64(size)) / float64(before+size)
	p.position += order.Size
	if p.position == 0 {
		p.averagePrice = 0
	}
	return true
}

func (p *Position) close(order Order, price float64, ts int64) {
	closed := min(abs(p.position), abs(order.Size))
	dir := sign(p.position)
	profit := p.spec.Multiplier*float64(closed)*float64(dir)*(price-p.averagePrice) - p.spec.Fee*float64(closed)
	p.realizedProfits = append(p.realizedProfits, Profit{Timestamp: ts, Profit: profit})
	p.realizedProfit += profit
	p.position -= dir * closed

	if p.position != 0 {
		return
	}
	remaining := order.Size + dir*closed
	if remaining != 0 {
		p.position = remaining
		p.averagePrice = price
		return
	}
	p.averagePrice = 0
}

// Position 返回带符号的持仓手数。
func (p *Position) Position() int {
	return p.position
}

// AveragePrice 空仓时为 0。
func (p *Position) AveragePrice() float64 {
	return p.averagePrice
}

// RealizedProfits 返回已实现盈亏记录的副本。
func (p *Position) RealizedProfits() []Profit {
	out := make([]Profit, len(p.realizedProfits))
	copy(out, p.realizedProfits)
	return out
}

// ProfitsSince 返回第 n 条之后的平仓记录，结果与内部切片共享底层数组，调用方不得修改。
func (p *Position) ProfitsSince(n int) []Profit {
	if n < 0 {
		n = 0
	}
	if n >= len(p.realizedProfits) {
		return nil
	}
	return p.realizedProfits[n:len(p.realizedProfits):len(p.realizedProfits)]
}

// RealizedProfit 返回已实现盈亏之和。
func (p *Position) RealizedProfit() float64 {
	return p.realizedProfit
}

// LastRealizedProfit 返回最近一次平仓记录。
func (p *Position) LastRealizedProfit() (Profit, bool) {
	if len(p.realizedProfits) == 0 {
		return Profit{}, false
	}
	return p.realizedProfits[len(p.realizedProfits)-1], true
}

// NumRealizedProfits 返回平仓记录条数。
func (p *Position) NumRealizedProfits() int {
	return len(p.realizedProfits)
}

// TradedVolumeUSD 返回累计成交名义金额。
func (p *Position) TradedVolumeUSD() float64 {
	return p.tradedVolumeUSD
}

func (p *Position) InstrumentID() InstrumentID {
	return p.instrumentID
}

func (p *Position) Spec() InstrumentSpec {
	return p.spec
}

// PendingOrders 返回尚未成交的订单数量。
func (p *Position) PendingOrders() int {
	return len(p.orders)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
