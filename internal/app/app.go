package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"trades-selfplay/internal/config"
	"trades-selfplay/internal/journal"
	"trades-selfplay/internal/selfplay"
	"trades-selfplay/internal/store"
)

// liveIteration 为状态接口暴露的当前迭代。
type liveIteration struct {
	index int
	stat  *selfplay.IterationStat
}

// App 聚合核心依赖并驱动训练、回测与数据准备。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	journal *journal.Service
	live    atomic.Pointer[liveIteration]
}

// New 创建 App 实例并初始化运行记录表。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: 配置不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	journalSvc, err := journal.NewService(store, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化运行记录失败: %w", err)
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		journal: journalSvc,
	}, nil
}

// Journal 返回运行记录服务。
func (a *App) Journal() *journal.Service {
	return a.journal
}

// StartMonitor 在配置了端口时启动状态接口，随 ctx 结束而关闭。
func (a *App) StartMonitor(ctx context.Context) error {
	if a.cfg.Monitor.Port == 0 {
		return nil
	}
	return startMonitorServer(ctx, a.statusHandler(), a.cfg.Monitor.Port, a.logger)
}
