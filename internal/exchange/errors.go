package exchange

import (
	"context"
	"errors"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，历史下载应直接失败。
	ErrMaintenance = errors.New("exchange: 交易所维护中")
	// ErrNoProgress 表示分页下载时游标没有前进。
	ErrNoProgress = errors.New("exchange: 分页游标未前进")
)

// IsRetryable 判断K线下载错误是否值得重试。
// 取消、维护与分页停滞不重试；ccxt 的网络与限频错误以及底层网络错误可重试。
func IsRetryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrMaintenance),
		errors.Is(err, ErrNoProgress):
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		return retryableCCXT(ccxtErr)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableCCXT(err *ccxt.Error) bool {
	switch err.Type {
	case ccxt.NetworkErrorErrType,
		ccxt.RequestTimeoutErrType,
		ccxt.ExchangeNotAvailableErrType,
		ccxt.RateLimitExceededErrType,
		ccxt.DDoSProtectionErrType,
		ccxt.BadResponseErrType,
		ccxt.NullResponseErrType:
		return true
	}
	return false
}
