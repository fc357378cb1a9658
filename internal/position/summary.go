package position

// Summary 为仓位的只读快照，用于日志与运行记录。
type Summary struct {
	Symbol          string  `json:"symbol"`
	Side            string  `json:"side"`
	Size            int     `json:"size"`
	AveragePrice    float64 `json:"average_price"`
	RealizedProfit  float64 `json:"realized_profit"`
	NumTrades       int     `json:"num_trades"`
	TradedVolumeUSD float64 `json:"traded_volume_usd"`
	PendingOrders   int     `json:"pending_orders"`
}

// EmptySummary 返回空快照。
func EmptySummary() Summary {
	return Summary{Side: "flat"}
}

// Summarize 生成当前仓位快照。
func (p *Position) Summarize() Summary {
	s := EmptySummary()
	s.Symbol = p.instrumentID.Symbol
	switch {
	case p.position > 0:
		s.Side = "long"
	case p.position < 0:
		s.Side = "short"
	}
	s.Size = p.position
	s.AveragePrice = p.averagePrice
	s.RealizedProfit = p.RealizedProfit()
	s.NumTrades = len(p.realizedProfits)
	s.TradedVolumeUSD = p.tradedVolumeUSD
	s.PendingOrders = len(p.orders)
	return s
}
