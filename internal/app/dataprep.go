package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trades-selfplay/internal/config"
	"trades-selfplay/internal/dataset"
	"trades-selfplay/internal/exchange"
	"trades-selfplay/internal/indicator"
	"trades-selfplay/internal/journal"
)

// PrepareDataset 读取K线、计算特征并写出二进制数据集。
func (a *App) PrepareDataset(ctx context.Context) (dataset.Dataset, error) {
	cfg := a.cfg.DataPrep

	source, err := a.candleSource()
	if err != nil {
		return nil, err
	}
	candles, err := source.Candles(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取K线失败: %w", err)
	}

	bars, err := indicator.NewCalculator(indicator.DefaultPeriods()).Bars(candles)
	if err != nil {
		return nil, err
	}
	if err := dataset.Write(cfg.OutputPath, bars); err != nil {
		return nil, err
	}

	payload := journal.DatasetPayload{
		Source:     cfg.Source,
		Path:       cfg.OutputPath,
		Rows:       bars.Len(),
		FiniteRows: bars.FiniteCount(),
	}
	a.journal.RecordDataset(ctx, payload)
	a.logger.Info("数据集已生成",
		zap.String("path", payload.Path),
		zap.Int("rows", payload.Rows),
		zap.Int("finite_rows", payload.FiniteRows),
	)
	return bars, nil
}

func (a *App) candleSource() (exchange.CandleSource, error) {
	cfg := a.cfg.DataPrep
	switch cfg.Source {
	case config.DataSourceCSV:
		return exchange.NewCSVSource(cfg.CSVPath, a.logger), nil
	case config.DataSourceExchange:
		client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
		if err != nil {
			return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
		}
		return exchange.NewHistoryService(client, exchange.HistoryRequest{
			Timeframe: cfg.Timeframe,
			Since:     cfg.Since,
			Until:     cfg.Until,
			PageLimit: cfg.PageLimit,
		}, a.logger), nil
	default:
		return nil, fmt.Errorf("不支持的数据来源 %q", cfg.Source)
	}
}
