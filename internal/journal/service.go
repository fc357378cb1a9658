package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trades-selfplay/internal/backtest"
	"trades-selfplay/internal/position"
	"trades-selfplay/internal/selfplay"
	"trades-selfplay/internal/store"
)

// Service 负责持久化运行记录与已实现盈亏。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化记录服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_events_type ON journal_events(event_type);
CREATE TABLE IF NOT EXISTS realized_profits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	profit REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_realized_profits_run ON realized_profits(run_id);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordIteration 记录迭代摘要。
func (s *Service) RecordIteration(ctx context.Context, result selfplay.Result) {
	if err := s.Record(ctx, Event{
		Type:    EventIteration,
		Payload: IterationPayload{Result: result},
	}); err != nil {
		s.logger.Warn("记录迭代事件失败", zap.Error(err))
	}
}

// RecordBacktest 记录回测指标。
func (s *Service) RecordBacktest(ctx context.Context, runID string, iteration int, result backtest.Result) {
	if err := s.Record(ctx, Event{
		Type: EventBacktest,
		Payload: BacktestPayload{
			RunID:     runID,
			Iteration: iteration,
			Bars:      result.Bars,
			Metrics:   result.Metrics,
			Positions: result.Positions,
		},
	}); err != nil {
		s.logger.Warn("记录回测事件失败", zap.Error(err))
	}
}

// RecordDataset 记录数据集生成。
func (s *Service) RecordDataset(ctx context.Context, payload DatasetPayload) {
	if err := s.Record(ctx, Event{Type: EventDatasetPrepared, Payload: payload}); err != nil {
		s.logger.Warn("记录数据集事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:    EventError,
		Payload: payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// RecordProfits 在一个事务中写入本次回测的全部已实现盈亏。
func (s *Service) RecordProfits(ctx context.Context, runID string, profits []position.Profit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: 开启事务失败: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO realized_profits (run_id, ts, profit) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("journal: 准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, p := range profits {
		if _, err := stmt.ExecContext(ctx, runID, p.Timestamp, p.Profit); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("journal: 写入盈亏失败: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: 提交事务失败: %w", err)
	}
	return nil
}

// ListProfits 按写入顺序返回某次回测的盈亏。
func (s *Service) ListProfits(ctx context.Context, runID string) ([]position.Profit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, profit FROM realized_profits WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询盈亏失败: %w", err)
	}
	defer rows.Close()

	var profits []position.Profit
	for rows.Next() {
		var p position.Profit
		if err := rows.Scan(&p.Timestamp, &p.Profit); err != nil {
			return nil, fmt.Errorf("journal: 解析盈亏失败: %w", err)
		}
		profits = append(profits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取盈亏失败: %w", err)
	}
	return profits, nil
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM journal_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}

	return events, nil
}
