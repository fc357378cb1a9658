package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"trades-selfplay/internal/position"
)

// ExportProfitsCSV 写出 timestamp,profit 两列，每次（部分）平仓一行。
func ExportProfitsCSV(path string, profits []position.Profit) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("backtest: 创建目录失败: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backtest: 创建盈亏文件失败: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write([]string{"timestamp", "profit"}); err != nil {
		_ = file.Close()
		return fmt.Errorf("backtest: 写入表头失败: %w", err)
	}
	for _, p := range profits {
		row := []string{
			strconv.FormatInt(p.Timestamp, 10),
			strconv.FormatFloat(p.Profit, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			_ = file.Close()
			return fmt.Errorf("backtest: 写入盈亏记录失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("backtest: 刷新盈亏文件失败: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("backtest: 关闭盈亏文件失败: %w", err)
	}
	return nil
}
