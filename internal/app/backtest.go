package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trades-selfplay/internal/backtest"
	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/model"
	"trades-selfplay/internal/position"
)

// Backtest 以 backtest.iteration 的开仓模型和上一迭代的平仓模型回测单一合约。
func (a *App) Backtest(ctx context.Context) (backtest.Result, error) {
	cfg := a.cfg.Backtest

	models := model.NewSet(cfg.Iteration, cfg.ModelsDir)
	if err := models.LoadWithClosingFromPrevious(); err != nil {
		return backtest.Result{}, fmt.Errorf("加载回测模型失败: %w", err)
	}
	a.logger.Info("回测模型已加载", zap.Int("iteration", cfg.Iteration), zap.String("models", models.Summary()))

	data, err := dataset.Load(a.cfg.Dataset.Path, cfg.Offset, cfg.Limit)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("加载数据集失败: %w", err)
	}
	a.logger.Info("数据集已加载", zap.Int("rows", data.Len()))

	pos, err := backtest.Config{
		Symbol:     cfg.Instrument.Symbol,
		Multiplier: cfg.Instrument.Multiplier,
		Fee:        cfg.Instrument.Fee,
	}.NewPosition()
	if err != nil {
		return backtest.Result{}, err
	}
	engine, err := backtest.NewBacktester(
		backtest.NewSliceBarProvider(data),
		backtest.NewBasicStrategy(pos, models),
		[]*position.Position{pos},
		a.logger,
	)
	if err != nil {
		return backtest.Result{}, err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return backtest.Result{}, err
	}

	if cfg.ProfitsOutputFile != "" {
		if err := backtest.ExportProfitsCSV(cfg.ProfitsOutputFile, result.Profits); err != nil {
			return result, err
		}
	}

	runID := fmt.Sprintf("bt-%d-%s", cfg.Iteration, time.Now().UTC().Format("20060102T150405.000"))
	if err := a.journal.RecordProfits(ctx, runID, result.Profits); err != nil {
		return result, err
	}
	a.journal.RecordBacktest(ctx, runID, cfg.Iteration, result)
	a.logger.Info("回测摘要", zap.String("run_id", runID), zap.String("summary", result.Summary()))
	return result, nil
}
