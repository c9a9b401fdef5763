package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/metrics"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/cache"
	"github.com/stockbot/gostock/pkg/ratelimit"
)

var log = logrus.WithField("module", "marketdata")

const quoteCacheTTL = 2 * time.Minute

// YahooSource 雅虎行情源：报价与 K 线
//
// 报价带 2 分钟缓存和指数退避重试；下单路径不走这里，
// 行情读失败只影响当轮决策（上层按 fail-open/fail-neutral 降级）。
type YahooSource struct {
	quotes  *cache.QuoteCache
	limiter *ratelimit.RateLimitManager
}

// NewYahooSource 创建雅虎行情源
func NewYahooSource() *YahooSource {
	return &YahooSource{
		quotes:  cache.NewQuoteCache(quoteCacheTTL),
		limiter: ratelimit.NewRateLimitManager(),
	}
}

// retryPolicy 行情读取的重试策略：最多约 10 秒
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithContext(b, ctx)
}

// GetQuote 获取最新价，优先走缓存
func (y *YahooSource) GetQuote(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(symbol)
	if price, ok := y.quotes.Get(symbol); ok {
		return price, nil
	}

	var price float64
	err := backoff.Retry(func() error {
		if err := y.limiter.Wait(ctx, "yahoo:quote:get"); err != nil {
			return backoff.Permanent(err)
		}
		metrics.QuoteFetches.Add(1)
		q, err := quote.Get(symbol)
		if err != nil {
			metrics.QuoteErrors.Add(1)
			return errors.Wrapf(err, "获取报价失败: %s", symbol)
		}
		if q == nil || q.RegularMarketPrice <= 0 {
			return errors.Errorf("报价为空: %s", symbol)
		}
		price = q.RegularMarketPrice
		return nil
	}, retryPolicy(ctx))
	if err != nil {
		return 0, err
	}

	y.quotes.Set(symbol, price)
	return price, nil
}

// decToFloat 雅虎 K 线价格是 decimal，内部统一用 float64
func decToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func yahooInterval(interval ports.Interval) datetime.Interval {
	switch interval {
	case ports.Interval1Min:
		return datetime.OneMin
	case ports.Interval5Min:
		return datetime.FiveMins
	default:
		return datetime.OneDay
	}
}

// GetBars 获取 K 线，按时间升序返回
// 空结果 + nil error 表示"无数据"，与行情源不可达（error）严格区分。
func (y *YahooSource) GetBars(ctx context.Context, symbol string, interval ports.Interval, lookback time.Duration) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	end := time.Now()
	start := end.Add(-lookback)

	var bars []domain.Bar
	err := backoff.Retry(func() error {
		if err := y.limiter.Wait(ctx, "yahoo:chart:get"); err != nil {
			return backoff.Permanent(err)
		}
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: yahooInterval(interval),
		}
		iter := chart.Get(params)

		bars = bars[:0]
		for iter.Next() {
			b := iter.Bar()
			bars = append(bars, domain.Bar{
				Time:   time.Unix(int64(b.Timestamp), 0),
				Open:   decToFloat(b.Open),
				High:   decToFloat(b.High),
				Low:    decToFloat(b.Low),
				Close:  decToFloat(b.Close),
				Volume: float64(b.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return errors.Wrapf(err, "获取K线失败: %s %s", symbol, interval)
		}
		return nil
	}, retryPolicy(ctx))
	if err != nil {
		return nil, err
	}

	log.Debugf("📊 K线: %s %s lookback=%s -> %d 根", symbol, interval, lookback, len(bars))
	return bars, nil
}
