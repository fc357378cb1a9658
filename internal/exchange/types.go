package exchange

import "time"

const (
	// Timeframe1m 为默认的数据集周期。
	Timeframe1m = "1m"
	// Timeframe1h 小时线。
	Timeframe1h = "1h"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// HistoryRequest 描述一次历史K线下载。
type HistoryRequest struct {
	Timeframe string
	Since     time.Time
	Until     time.Time
	PageLimit int
}

const defaultPageLimit = 1000

func (r HistoryRequest) normalize() HistoryRequest {
	if r.Timeframe == "" {
		r.Timeframe = Timeframe1m
	}
	if r.PageLimit <= 0 {
		r.PageLimit = defaultPageLimit
	}
	if r.Until.IsZero() {
		r.Until = time.Now().UTC()
	}
	return r
}
