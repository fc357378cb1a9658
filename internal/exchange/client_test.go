package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"trades-selfplay/internal/config"
)

// mockOHLCVAPI 按固定步长生成K线，并记录每次请求的起点。
type mockOHLCVAPI struct {
	step    time.Duration
	end     time.Time
	calls   int
	failFor int
}

func (m *mockOHLCVAPI) fetchOHLCV(symbol, timeframe string, sinceMs, limit64 int64) ([]ccxt.OHLCV, error) {
	m.calls++
	if m.calls <= m.failFor {
		return nil, &ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "boom"}
	}
	since := time.UnixMilli(sinceMs)
	limit := int(limit64)

	// 对齐到下一个步长边界。
	ts := since.Truncate(m.step)
	if ts.Before(since) {
		ts = ts.Add(m.step)
	}
	var out []ccxt.OHLCV
	for len(out) < limit && ts.Before(m.end) {
		out = append(out, ccxt.OHLCV{Timestamp: ts.UnixMilli(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10})
		ts = ts.Add(m.step)
	}
	return out, nil
}

func testClient(api ohlcvAPI) *Client {
	cfg := config.ExchangeConfig{
		Market: "BTC/USDT",
		Retry:  config.RetryConfig{MaxAttempts: 3, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
	return newClient(cfg, api, nil, nil)
}

func TestFetchHistory_Paginates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &mockOHLCVAPI{step: time.Minute, end: start.Add(time.Hour)}
	client := testClient(api)

	candles, err := client.FetchHistory(context.Background(), HistoryRequest{
		Timeframe: Timeframe1m,
		Since:     start,
		Until:     start.Add(25 * time.Minute),
		PageLimit: 10,
	})
	if err != nil {
		t.Fatalf("FetchHistory returned error: %v", err)
	}
	if len(candles) != 25 {
		t.Fatalf("expected 25 candles, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			t.Fatalf("candles not strictly increasing at %d", i)
		}
	}
	if api.calls != 3 {
		t.Fatalf("expected 3 pages, got %d", api.calls)
	}
}

func TestFetchHistory_RetriesNetworkErrors(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &mockOHLCVAPI{step: time.Minute, end: start.Add(5 * time.Minute), failFor: 2}
	client := testClient(api)

	candles, err := client.FetchHistory(context.Background(), HistoryRequest{
		Since: start, Until: start.Add(time.Hour), PageLimit: 100,
	})
	if err != nil {
		t.Fatalf("FetchHistory returned error: %v", err)
	}
	if len(candles) != 5 {
		t.Fatalf("expected 5 candles, got %d", len(candles))
	}
}

func TestFetchHistory_GivesUpAfterMaxAttempts(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &mockOHLCVAPI{step: time.Minute, end: start.Add(time.Hour), failFor: 10}
	client := testClient(api)

	_, err := client.FetchHistory(context.Background(), HistoryRequest{Since: start, Until: start.Add(time.Hour)})
	if err == nil {
		t.Fatalf("expected error after retries")
	}
	if api.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", api.calls)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable ccxt error, got %v", err)
	}
}

func TestClassifyError_Maintenance(t *testing.T) {
	client := testClient(&mockOHLCVAPI{})
	err, retry := client.classifyError(&ccxt.Error{Type: ccxt.OnMaintenanceErrType})
	if retry || !errors.Is(err, ErrMaintenance) {
		t.Fatalf("expected non-retryable maintenance error, got %v retry=%v", err, retry)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"no progress", ErrNoProgress, false},
		{"rate limit", &ccxt.Error{Type: ccxt.RateLimitExceededErrType}, true},
		{"maintenance", &ccxt.Error{Type: ccxt.OnMaintenanceErrType}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHistoryService_WrapsErrorWithSymbol(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &mockOHLCVAPI{step: time.Minute, end: start.Add(time.Hour), failFor: 10}
	svc := NewHistoryService(testClient(api), HistoryRequest{Since: start, Until: start.Add(time.Hour)}, nil)

	_, err := svc.Candles(context.Background())
	if err == nil || !strings.Contains(err.Error(), "BTC/USDT") {
		t.Fatalf("expected error naming the symbol, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("wrapping must keep the ccxt error reachable, got %v", err)
	}

	ok := NewHistoryService(testClient(&mockOHLCVAPI{step: time.Minute, end: start.Add(5 * time.Minute)}),
		HistoryRequest{Since: start, Until: start.Add(time.Hour), PageLimit: 100}, nil)
	candles, err := ok.Candles(context.Background())
	if err != nil || len(candles) != 5 {
		t.Fatalf("expected 5 candles, got %d (%v)", len(candles), err)
	}
}
