package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// 迭代模式。
const (
	IterationModeSequential = "sequential"
	IterationModeBatched    = "batched"
)

// 数据准备来源。
const (
	DataSourceCSV      = "csv"
	DataSourceExchange = "exchange"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Iteration IterationConfig `mapstructure:"iteration"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	DataPrep  DataPrepConfig  `mapstructure:"dataprep"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// DatasetConfig 描述二进制数据集位置。
type DatasetConfig struct {
	Path string `mapstructure:"path"`
}

// IterationConfig 控制自博弈迭代。
type IterationConfig struct {
	Start                 int     `mapstructure:"start"`
	Count                 int     `mapstructure:"count"`
	NPlays                int     `mapstructure:"n_plays"`
	Concurrency           int     `mapstructure:"concurrency"`
	Mode                  string  `mapstructure:"mode"`
	BatchSize             int     `mapstructure:"batch_size"`
	OutputDir             string  `mapstructure:"output_dir"`
	FeePerContractUSD     float64 `mapstructure:"fee_per_contract_usd"`
	Multiplier            float64 `mapstructure:"multiplier"`
	UtilityPenaltyBps     float64 `mapstructure:"utility_penalty_bps"`
	MaxPlayDurationInBars int     `mapstructure:"max_play_duration_in_bars"`
	Offset                float64 `mapstructure:"offset"`
	Limit                 float64 `mapstructure:"limit"`
}

// BacktestConfig 控制回测。
type BacktestConfig struct {
	Iteration         int              `mapstructure:"iteration"`
	ModelsDir         string           `mapstructure:"models_dir"`
	Offset            float64          `mapstructure:"offset"`
	Limit             float64          `mapstructure:"limit"`
	ProfitsOutputFile string           `mapstructure:"profits_output_file"`
	Instrument        InstrumentConfig `mapstructure:"instrument"`
}

// InstrumentConfig 描述合约规格。
type InstrumentConfig struct {
	Symbol     string  `mapstructure:"symbol"`
	Multiplier float64 `mapstructure:"multiplier"`
	Fee        float64 `mapstructure:"fee"`
}

// DataPrepConfig 控制数据集生成。
type DataPrepConfig struct {
	Source     string    `mapstructure:"source"`
	CSVPath    string    `mapstructure:"csv_path"`
	OutputPath string    `mapstructure:"output_path"`
	Timeframe  string    `mapstructure:"timeframe"`
	Since      time.Time `mapstructure:"since"`
	Until      time.Time `mapstructure:"until"`
	PageLimit  int       `mapstructure:"page_limit"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制运行状态接口，端口为0时不启动。
type MonitorConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Dataset.Path == "" {
		err = multierr.Append(err, errors.New("dataset.path 不能为空"))
	}
	err = multierr.Append(err, c.Iteration.validate())
	err = multierr.Append(err, c.Backtest.validate())
	err = multierr.Append(err, c.DataPrep.validate())
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func (c IterationConfig) validate() error {
	var err error
	if c.Start < 0 {
		err = multierr.Append(err, errors.New("iteration.start 不能为负"))
	}
	if c.Count <= 0 {
		err = multierr.Append(err, errors.New("iteration.count 必须大于0"))
	}
	if c.NPlays <= 0 {
		err = multierr.Append(err, errors.New("iteration.n_plays 必须大于0"))
	}
	if c.Concurrency <= 0 {
		err = multierr.Append(err, errors.New("iteration.concurrency 必须大于0"))
	}
	switch c.Mode {
	case IterationModeSequential:
	case IterationModeBatched:
		if c.BatchSize <= 0 {
			err = multierr.Append(err, errors.New("iteration.batch_size 必须大于0"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("iteration.mode 取值非法: %q", c.Mode))
	}
	if c.OutputDir == "" {
		err = multierr.Append(err, errors.New("iteration.output_dir 不能为空"))
	}
	if c.FeePerContractUSD < 0 {
		err = multierr.Append(err, errors.New("iteration.fee_per_contract_usd 不能为负"))
	}
	if c.Multiplier <= 0 {
		err = multierr.Append(err, errors.New("iteration.multiplier 必须大于0"))
	}
	if c.MaxPlayDurationInBars <= 0 {
		err = multierr.Append(err, errors.New("iteration.max_play_duration_in_bars 必须大于0"))
	}
	err = multierr.Append(err, validateWindow("iteration", c.Offset, c.Limit))
	return err
}

func (c BacktestConfig) validate() error {
	var err error
	if c.Iteration < 1 {
		err = multierr.Append(err, errors.New("backtest.iteration 必须大于等于1"))
	}
	if c.ModelsDir == "" {
		err = multierr.Append(err, errors.New("backtest.models_dir 不能为空"))
	}
	if c.ProfitsOutputFile == "" {
		err = multierr.Append(err, errors.New("backtest.profits_output_file 不能为空"))
	}
	if c.Instrument.Symbol == "" {
		err = multierr.Append(err, errors.New("backtest.instrument.symbol 不能为空"))
	}
	if c.Instrument.Multiplier <= 0 {
		err = multierr.Append(err, errors.New("backtest.instrument.multiplier 必须大于0"))
	}
	if c.Instrument.Fee < 0 {
		err = multierr.Append(err, errors.New("backtest.instrument.fee 不能为负"))
	}
	err = multierr.Append(err, validateWindow("backtest", c.Offset, c.Limit))
	return err
}

func (c DataPrepConfig) validate() error {
	var err error
	switch c.Source {
	case DataSourceCSV:
		if c.CSVPath == "" {
			err = multierr.Append(err, errors.New("dataprep.csv_path 不能为空"))
		}
	case DataSourceExchange:
		if c.Timeframe == "" {
			err = multierr.Append(err, errors.New("dataprep.timeframe 不能为空"))
		}
		if c.PageLimit <= 0 {
			err = multierr.Append(err, errors.New("dataprep.page_limit 必须大于0"))
		}
		if !c.Since.IsZero() && !c.Until.IsZero() && !c.Since.Before(c.Until) {
			err = multierr.Append(err, errors.New("dataprep.since 必须早于 until"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("dataprep.source 取值非法: %q", c.Source))
	}
	if c.OutputPath == "" {
		err = multierr.Append(err, errors.New("dataprep.output_path 不能为空"))
	}
	return err
}

func validateWindow(section string, offset, limit float64) error {
	var err error
	if offset < 0 || offset >= 1 {
		err = multierr.Append(err, fmt.Errorf("%s.offset 必须位于[0,1)", section))
	}
	if limit <= 0 || limit > 1 {
		err = multierr.Append(err, fmt.Errorf("%s.limit 必须位于(0,1]", section))
	}
	if offset+limit > 1+1e-9 {
		err = multierr.Append(err, fmt.Errorf("%s.offset + limit 不能超过1", section))
	}
	return err
}
