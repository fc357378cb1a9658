package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"trades-selfplay/internal/app"
)

func main() {
	var (
		configPath  string
		printConfig bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&printConfig, "print-config", false, "输出生效配置后退出")
	flag.Parse()

	a, closeFn, err := app.Bootstrap(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	if printConfig {
		if err := a.PrintConfig(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := a.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	data, err := a.PrepareDataset(ctx)
	if err != nil {
		closeFn()
		logger.Error("生成数据集失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("数据集统计", zap.Int("rows", data.Len()), zap.Int("finite_rows", data.FiniteCount()))

	logger.Info("数据准备已完成")
}
