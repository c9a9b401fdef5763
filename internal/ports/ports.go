package ports

import (
	"context"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

// Small capability interfaces shared across layers (engine/execution/marketdata).
//
// NOTE: These are intentionally defined in a "neutral" package to avoid
// circular dependencies between the engine, the data providers and execution.

// Interval K 线周期
type Interval string

const (
	Interval1Min Interval = "1m"
	Interval5Min Interval = "5m"
	Interval1Day Interval = "1d"
)

// MarketData 行情端口
//
// 约定：错误（数据源不可达）和"无数据"（空结果、nil error）必须区分开，
// 方向闸门的 fail-open 行为依赖这个区分。
type MarketData interface {
	// GetQuote returns the latest price for a symbol.
	GetQuote(ctx context.Context, symbol string) (float64, error)
	// GetBars returns OHLCV bars, oldest first. Empty slice + nil error means "no data".
	GetBars(ctx context.Context, symbol string, interval Interval, lookback time.Duration) ([]domain.Bar, error)
	// GetPositions returns current open positions.
	GetPositions(ctx context.Context) ([]domain.Position, error)
	// GetAccount returns the account snapshot.
	GetAccount(ctx context.Context) (*domain.Account, error)
}

// OrderResult 下单结果
type OrderResult struct {
	OrderID string
	Status  string
}

// OrderExecutor 订单执行端口：单次尝试，本引擎内不做自动重试。
type OrderExecutor interface {
	SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side domain.Side) (*OrderResult, error)
}

// Notifier 通知端口：尽力而为，失败不得向引擎抛出。
type Notifier interface {
	NotifyTrade(ctx context.Context, record *domain.TradeRecord) bool
}

// MarketHours 交易时段端口
type MarketHours interface {
	IsOpen(now time.Time) bool
	// MinutesSinceOpen returns minutes elapsed since session open (negative before open).
	MinutesSinceOpen(now time.Time) float64
}
