package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trades-selfplay/internal/config"
)

type ohlcvAPI interface {
	fetchOHLCV(symbol, timeframe string, since, limit int64) ([]ccxt.OHLCV, error)
}

// ccxtOHLCV 将 ccxt 的可选参数接口适配为固定参数。
type ccxtOHLCV struct {
	fetch func(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error)
}

func (a ccxtOHLCV) fetchOHLCV(symbol, timeframe string, since, limit int64) ([]ccxt.OHLCV, error) {
	return a.fetch(
		symbol,
		ccxt.WithFetchOHLCVTimeframe(timeframe),
		ccxt.WithFetchOHLCVSince(since),
		ccxt.WithFetchOHLCVLimit(limit),
	)
}

// Client 负责从交易所下载历史K线，并实现重试机制。
type Client struct {
	cfg         config.ExchangeConfig
	logger      *zap.Logger
	api         ohlcvAPI
	loadMarkets func() error
	symbol      string

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 按配置构造 ccxt 客户端，binance 为现货，其余默认 Binance USDⓈ-M。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Market) == "" {
		return nil, fmt.Errorf("exchange: market 不能为空")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	switch strings.ToLower(cfg.Name) {
	case "binance":
		ex := ccxt.NewBinance(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return newClient(cfg, ccxtOHLCV{fetch: ex.FetchOHLCV}, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, logger), nil
	case "", "binanceusdm":
		userConfig["options"] = map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		}
		ex := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			ex.SetSandboxMode(true)
		}
		return newClient(cfg, ccxtOHLCV{fetch: ex.FetchOHLCV}, func() error {
			_, err := ex.LoadMarkets()
			return err
		}, logger), nil
	default:
		return nil, fmt.Errorf("exchange: 不支持的交易所 %q", cfg.Name)
	}
}

func newClient(cfg config.ExchangeConfig, api ohlcvAPI, loadMarkets func() error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:         cfg,
		logger:      logger,
		api:         api,
		loadMarkets: loadMarkets,
		symbol:      cfg.Market,
	}
}

// Symbol 返回交易对符号。
func (c *Client) Symbol() string {
	return c.symbol
}

// FetchPage 获取从 since 开始的一页K线。
func (c *Client) FetchPage(ctx context.Context, timeframe string, since time.Time, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.api.fetchOHLCV(c.symbol, timeframe, since.UnixMilli(), limit)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles, nil
}

// FetchHistory 分页下载 [Since, Until) 区间内的K线，结果按时间升序且不重复。
func (c *Client) FetchHistory(ctx context.Context, req HistoryRequest) ([]Candle, error) {
	req = req.normalize()
	if !req.Since.Before(req.Until) {
		return nil, fmt.Errorf("exchange: since %s 必须早于 until %s", req.Since, req.Until)
	}

	var (
		out    []Candle
		cursor = req.Since
		last   time.Time
	)
	for cursor.Before(req.Until) {
		page, err := c.FetchPage(ctx, req.Timeframe, cursor, int64(req.PageLimit))
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, candle := range page {
			if !candle.Timestamp.Before(req.Until) {
				break
			}
			if len(out) > 0 && !candle.Timestamp.After(last) {
				continue
			}
			out = append(out, candle)
			last = candle.Timestamp
		}

		next := page[len(page)-1].Timestamp.Add(time.Millisecond)
		if !next.After(cursor) {
			return nil, fmt.Errorf("%w: %s", ErrNoProgress, cursor)
		}
		cursor = next

		c.logger.Debug("已下载K线分页",
			zap.String("symbol", c.symbol),
			zap.Int("page", len(page)),
			zap.Int("total", len(out)),
			zap.Time("cursor", cursor),
		)
		if len(page) < req.PageLimit {
			break
		}
	}

	c.logger.Info("历史K线下载完成",
		zap.String("symbol", c.symbol),
		zap.String("timeframe", req.Timeframe),
		zap.Int("candles", len(out)),
	)
	return out, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded || c.loadMarkets == nil {
		return nil
	}

	if err := c.loadMarkets(); err != nil {
		return err
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("symbol", c.symbol))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := min(delay, maxDelay)
		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(delay*2, maxDelay)
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OnMaintenanceErrType {
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message), false
	}
	return err, IsRetryable(err)
}
