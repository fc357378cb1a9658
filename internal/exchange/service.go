package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CandleSource 提供按时间升序排列的历史K线。
type CandleSource interface {
	Candles(ctx context.Context) ([]Candle, error)
}

// HistoryService 通过交易所客户端下载历史K线。
type HistoryService struct {
	client  *Client
	request HistoryRequest
	logger  *zap.Logger
}

// NewHistoryService 创建交易所K线来源。
func NewHistoryService(client *Client, req HistoryRequest, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		client:  client,
		request: req,
		logger:  logger,
	}
}

// Candles 下载配置区间内的全部K线，错误信息带上交易对。
func (s *HistoryService) Candles(ctx context.Context) ([]Candle, error) {
	symbol := s.client.Symbol()
	candles, err := s.client.FetchHistory(ctx, s.request)
	if err != nil {
		return nil, fmt.Errorf("exchange: 下载 %s 历史K线失败: %w", symbol, err)
	}
	s.logger.Info("已下载历史K线", zap.String("symbol", symbol), zap.Int("candles", len(candles)))
	return candles, nil
}

// CSVSource 读取 timestamp,open,high,low,close,volume 格式的文件，timestamp 为毫秒。
type CSVSource struct {
	path   string
	logger *zap.Logger
}

func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{path: path, logger: logger}
}

func (s *CSVSource) Candles(ctx context.Context) ([]Candle, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("exchange: 打开K线文件失败: %w", err)
	}
	defer file.Close()

	candles, err := ReadCandlesCSV(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("exchange: 解析 %s 失败: %w", s.path, err)
	}
	s.logger.Info("已读取K线文件", zap.String("path", s.path), zap.Int("candles", len(candles)))
	return candles, nil
}

// ReadCandlesCSV 解析K线，首行为表头时跳过，结果按时间排序。
func ReadCandlesCSV(ctx context.Context, r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6
	reader.TrimLeadingSpace = true

	var candles []Candle
	for line := 1; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "timestamp") {
			continue
		}

		candle, err := parseCandle(record)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		candles = append(candles, candle)
	}

	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func parseCandle(record []string) (Candle, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("时间戳非法: %w", err)
	}
	var values [5]float64
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return Candle{}, fmt.Errorf("第 %d 列非法: %w", i+2, err)
		}
		values[i] = v
	}
	return Candle{
		Timestamp: time.UnixMilli(ts).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
