package app

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"trades-selfplay/internal/config"
	"trades-selfplay/internal/log"
	"trades-selfplay/internal/store"
)

const redacted = "******"

// Bootstrap 加载配置、初始化日志与数据库并返回 App，关闭函数负责释放资源。
func Bootstrap(configPath string) (*App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	a, err := New(cfg, logger, sqliteStore)
	if err != nil {
		_ = sqliteStore.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	closeFn := func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
		_ = logger.Sync()
	}
	return a, closeFn, nil
}

// Logger 返回应用日志。
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// PrintConfig 以缩进 JSON 输出生效配置，便于核对默认值与环境变量覆盖。
func (a *App) PrintConfig(w io.Writer) error {
	cfg := *a.cfg
	if cfg.Exchange.APIKey != "" {
		cfg.Exchange.APIKey = redacted
	}
	if cfg.Exchange.APISecret != "" {
		cfg.Exchange.APISecret = redacted
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("输出配置失败: %w", err)
	}
	return nil
}
