package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/piquette/finance-go/equity"
	"github.com/pkg/errors"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
)

const (
	rsiPeriod      = 14
	dailyLookback  = 130 * 24 * time.Hour // 覆盖 120 日 MACD 线区间
	rangeLookback  = 60                   // 60 日价格区间
	trailingWindow = time.Hour
)

// SnapshotBuilder 把行情源的原始数据组装成每轮决策用的 Ticker 快照
// 指标（RSI/MACD/量能 sigma）在这里就地计算；算不出来的字段留 nil，
// 打分器对缺失输入取中性值。
type SnapshotBuilder struct {
	bars interface {
		GetBars(ctx context.Context, symbol string, interval ports.Interval, lookback time.Duration) ([]domain.Bar, error)
	}
}

// NewSnapshotBuilder 创建快照组装器
func NewSnapshotBuilder(src *YahooSource) *SnapshotBuilder {
	return &SnapshotBuilder{bars: src}
}

// BuildTicker 组装单个标的的快照
// 报价失败返回错误（没有价格无法决策）；指标数据失败只降级为缺失字段。
func (b *SnapshotBuilder) BuildTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	symbol = strings.ToUpper(symbol)

	eq, err := equity.Get(symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "获取标的行情失败: %s", symbol)
	}
	if eq == nil || eq.RegularMarketPrice <= 0 {
		return nil, errors.Errorf("标的行情为空: %s", symbol)
	}

	t := &domain.Ticker{
		Symbol:        symbol,
		Price:         eq.RegularMarketPrice,
		ChangePercent: eq.RegularMarketChangePercent,
	}
	if ts := eq.EarningsTimestamp; ts > 0 {
		ed := time.Unix(int64(ts), 0)
		t.EarningsDate = &ed
	}

	daily, err := b.bars.GetBars(ctx, symbol, ports.Interval1Day, dailyLookback)
	if err != nil {
		log.Warnf("⚠️ 日线获取失败，指标留空: %s %v", symbol, err)
	} else if len(daily) > 0 {
		b.fillDailyIndicators(t, daily)
	}

	if trailing := b.trailingChange(ctx, symbol); trailing != nil {
		t.TrailingChangePercent = trailing
	}
	return t, nil
}

func (b *SnapshotBuilder) fillDailyIndicators(t *domain.Ticker, daily []domain.Bar) {
	closes := make([]float64, len(daily))
	volumes := make([]float64, len(daily))
	for i, bar := range daily {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	if rsi, ok := computeRSI(closes, rsiPeriod); ok {
		t.RSI = &rsi
	}
	if sigma, ok := volumeSigma(volumes); ok {
		t.VolumeSigma = &sigma
	}

	if line, hist := computeMACD(closes); len(hist) > 0 {
		lineMin, lineMax := minMax(line)
		tail := hist
		if len(tail) > 10 {
			tail = tail[len(tail)-10:]
		}
		t.MACD = &domain.MACDSeries{
			Histogram: append([]float64(nil), tail...),
			Line:      line[len(line)-1],
			LineMin:   lineMin,
			LineMax:   lineMax,
		}
	}

	window := closes
	if len(window) > rangeLookback {
		window = window[len(window)-rangeLookback:]
	}
	low, high := minMax(window)
	t.Low60Day, t.High60Day = &low, &high
}

// trailingChange 最近两根 5 分钟收盘的涨跌幅，用于量能 pump 防护
func (b *SnapshotBuilder) trailingChange(ctx context.Context, symbol string) *float64 {
	bars, err := b.bars.GetBars(ctx, symbol, ports.Interval5Min, trailingWindow)
	if err != nil || len(bars) < 2 {
		return nil
	}
	prev := bars[len(bars)-2].Close
	last := bars[len(bars)-1].Close
	if prev <= 0 {
		return nil
	}
	change := (last - prev) / prev * 100
	return &change
}
