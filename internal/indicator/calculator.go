package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/exchange"
)

// Periods 为特征所用的指标周期。
type Periods struct {
	RSI        int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ATR        int
}

// DefaultPeriods 返回 RSI14、MACD(12,26,9)、ATR14。
func DefaultPeriods() Periods {
	return Periods{RSI: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9, ATR: 14}
}

// Warmup 返回首个有效特征之前的 bar 数。
func (p Periods) Warmup() int {
	macd := p.MACDSlow - 1 + p.MACDSignal - 1
	return max(p.RSI, macd, p.ATR)
}

// Calculator 由K线计算数据集特征：
// f1 = (RSI-50)/50，f2 = MACD 柱以收盘价的基点表示，f4 = ATR 以收盘价的基点表示。
type Calculator struct {
	periods Periods
}

// NewCalculator 创建 Calculator。
func NewCalculator(periods Periods) *Calculator {
	return &Calculator{periods: periods}
}

// Points 逐根计算特征，预热期与收盘价非正的 bar 为 NaN。
func (c *Calculator) Points(candles []exchange.Candle) ([]dataset.Point, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("计算指标失败: 输入K线为空")
	}

	series := NewSeries(candles)
	closes := series.Close

	rsi := talib.Rsi(closes, c.periods.RSI)
	_, _, hist := talib.Macd(closes, c.periods.MACDFast, c.periods.MACDSlow, c.periods.MACDSignal)
	atr := talib.Atr(series.High, series.Low, closes, c.periods.ATR)

	warmup := c.periods.Warmup()
	points := make([]dataset.Point, series.Len())
	for i := range points {
		if i < warmup || closes[i] <= 0 {
			points[i] = dataset.NaNPoint()
			continue
		}
		points[i] = dataset.Point{
			F1: (rsi[i] - 50) / 50,
			F2: SafeDivide(hist[i], closes[i]) * 10000,
			F4: SafeDivide(atr[i], closes[i]) * 10000,
		}
	}
	return points, nil
}

// Bars 生成数据集：中间价取收盘价，时间戳为开盘时间的毫秒值。
func (c *Calculator) Bars(candles []exchange.Candle) (dataset.Dataset, error) {
	points, err := c.Points(candles)
	if err != nil {
		return nil, err
	}
	bars := make(dataset.Dataset, len(candles))
	for i, candle := range candles {
		bars[i] = dataset.Bar{
			Timestamp: candle.Timestamp.UnixMilli(),
			MidPrice:  candle.Close,
			Point:     points[i],
		}
	}
	return bars, nil
}
