package journal

import (
	"time"

	"trades-selfplay/internal/backtest"
	"trades-selfplay/internal/position"
	"trades-selfplay/internal/selfplay"
)

// EventType 表示运行记录的事件类型。
type EventType string

const (
	EventIteration       EventType = "iteration"
	EventBacktest        EventType = "backtest"
	EventDatasetPrepared EventType = "dataset_prepared"
	EventError           EventType = "error"
)

// Event 封装通用事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IterationPayload 记录一次自博弈迭代。
type IterationPayload struct {
	Result selfplay.Result `json:"result"`
}

// BacktestPayload 记录一次回测。
type BacktestPayload struct {
	RunID     string             `json:"run_id"`
	Iteration int                `json:"iteration"`
	Bars      int                `json:"bars"`
	Metrics   backtest.Metrics   `json:"metrics"`
	Positions []position.Summary `json:"positions"`
}

// DatasetPayload 记录数据集生成。
type DatasetPayload struct {
	Source     string `json:"source"`
	Path       string `json:"path"`
	Rows       int    `json:"rows"`
	FiniteRows int    `json:"finite_rows"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
