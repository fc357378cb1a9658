package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "selfplay"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("dataset.path", "io/dataset.bin")

	v.SetDefault("iteration.start", 0)
	v.SetDefault("iteration.count", 1)
	v.SetDefault("iteration.n_plays", 10000)
	v.SetDefault("iteration.concurrency", 4)
	v.SetDefault("iteration.mode", IterationModeSequential)
	v.SetDefault("iteration.batch_size", 256)
	v.SetDefault("iteration.output_dir", "io/models")
	v.SetDefault("iteration.fee_per_contract_usd", 1.65)
	v.SetDefault("iteration.multiplier", 20.0)
	v.SetDefault("iteration.utility_penalty_bps", 0.0)
	v.SetDefault("iteration.max_play_duration_in_bars", 240)
	v.SetDefault("iteration.offset", 0.0)
	v.SetDefault("iteration.limit", 0.8)

	v.SetDefault("backtest.iteration", 1)
	v.SetDefault("backtest.models_dir", "io/models")
	v.SetDefault("backtest.offset", 0.8)
	v.SetDefault("backtest.limit", 0.2)
	v.SetDefault("backtest.profits_output_file", "io/profits.csv")
	v.SetDefault("backtest.instrument.symbol", "NQ")
	v.SetDefault("backtest.instrument.multiplier", 20.0)
	v.SetDefault("backtest.instrument.fee", 1.65)

	v.SetDefault("dataprep.source", DataSourceCSV)
	v.SetDefault("dataprep.csv_path", "io/candles.csv")
	v.SetDefault("dataprep.output_path", "io/dataset.bin")
	v.SetDefault("dataprep.timeframe", "1m")
	v.SetDefault("dataprep.page_limit", 1000)

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.market", "BTC/USDT:USDT")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("database.path", "io/journal.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 0)
	v.SetDefault("monitor.allowed_origins", []string{})
}

// loadDotEnv 依次加载工作目录与配置文件所在目录下的 .env，已存在的环境变量不会被覆盖。
func loadDotEnv(configPath string) error {
	candidates := []string{".env", filepath.Join(filepath.Dir(configPath), ".env")}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("加载 %s 失败: %w", abs, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
