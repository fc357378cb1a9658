package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/selfplay"
)

// Train 依次运行 [start, start+count) 的迭代，每次迭代使用上一迭代保存的模型。
func (a *App) Train(ctx context.Context) ([]selfplay.Result, error) {
	cfg := a.cfg.Iteration

	data, err := dataset.Load(a.cfg.Dataset.Path, cfg.Offset, cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("加载数据集失败: %w", err)
	}
	a.logger.Info("数据集已加载",
		zap.String("path", a.cfg.Dataset.Path),
		zap.Int("rows", data.Len()),
		zap.Int("finite_rows", data.FiniteCount()),
	)

	results := make([]selfplay.Result, 0, cfg.Count)
	for index := cfg.Start; index < cfg.Start+cfg.Count; index++ {
		it, err := selfplay.NewIteration(index, data, cfg, a.logger)
		if err != nil {
			a.journal.RecordError(ctx, "创建迭代失败", err, map[string]interface{}{"iteration": index})
			return results, err
		}
		a.live.Store(&liveIteration{index: index, stat: it.Stat()})

		result, err := it.Run(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.journal.RecordError(ctx, "迭代运行失败", err, map[string]interface{}{"iteration": index})
			}
			return results, fmt.Errorf("迭代 %d 失败: %w", index, err)
		}

		a.journal.RecordIteration(ctx, result)
		a.logger.Info("迭代摘要", zap.Int("iteration", index), zap.String("summary", result.Summary()))
		results = append(results, result)
	}
	return results, nil
}
