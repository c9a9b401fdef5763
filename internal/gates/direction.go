package gates

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/cache"
)

var log = logrus.WithField("module", "gates")

// Config 是 TradingConfig 的最小子集（避免循环依赖）。
type Config interface {
	GetBenchmarkSymbol() string
	// GetLenientMode true 时使用宽松规则（盘中走平或转正即放行）
	GetLenientMode() bool
}

// 多周期权重：越短的周期权重越高
var timeframeWeights = []struct {
	Window time.Duration
	Weight float64
}{
	{5 * time.Minute, 6},
	{10 * time.Minute, 5},
	{15 * time.Minute, 4},
	{30 * time.Minute, 3},
	{1 * time.Hour, 2},
	{4 * time.Hour, 1},
}

// 判定常量
const (
	barCacheTTL      = 2 * time.Minute
	minIntradayBars  = 5
	minMinutesToJudge = 5.0
	// recoveringRangePos 日内区间位置高于该值且 5 分钟为正视为回升中
	recoveringRangePos = 0.35
	// strictWeightedAvgMin 严格模式下加权均值门槛
	strictWeightedAvgMin = 0.05
	// strictPositiveRatio 严格模式下要求为正的周期占比
	strictPositiveRatio = 0.60
)

// TimeframeChange 单个周期的涨跌
type TimeframeChange struct {
	Window        time.Duration `json:"window"`
	ChangePercent float64       `json:"changePercent"`
	Weight        float64       `json:"weight"`
}

// Decision 闸门判定结果
type Decision struct {
	Allow         bool              `json:"allow"`
	Reason        string            `json:"reason"`
	Method        string            `json:"method"`
	WeightedAvg   float64           `json:"weightedAvg"`
	RangePosition float64           `json:"rangePosition"`
	IsRecovering  bool              `json:"isRecovering"`
	Timeframes    []TimeframeChange `json:"timeframes,omitempty"`
}

// Gate 市场方向闸门：基准指数当日为绿直接放行；当日为红时，
// 只有多周期一致确认回升才重新放开买入。数据缺失一律 fail-open——
// 绝不因为行情断流而单方面禁止交易。
type Gate struct {
	cfg    Config
	data   ports.MarketData
	hours  ports.MarketHours
	barCache *cache.InMemoryCache[string, []domain.Bar]
	now    func() time.Time
}

// New 创建方向闸门
func New(cfg Config, data ports.MarketData, hours ports.MarketHours) *Gate {
	return &Gate{
		cfg:      cfg,
		data:     data,
		hours:    hours,
		barCache: cache.NewInMemoryCache[string, []domain.Bar](barCacheTTL),
		now:      time.Now,
	}
}

// SetNowFunc 注入虚拟时钟（测试用）
func (g *Gate) SetNowFunc(now func() time.Time) { g.now = now }

// Decide 判定当前是否允许新买入
// dailyChangePercent 为基准指数当日涨跌幅。
func (g *Gate) Decide(ctx context.Context, dailyChangePercent float64) *Decision {
	// 当日为绿：无条件放行
	if dailyChangePercent >= 0 {
		return &Decision{
			Allow:  true,
			Method: "daily_green",
			Reason: fmt.Sprintf("daily_green(%.2f%%)", dailyChangePercent),
		}
	}

	bars, err := g.intradayBars(ctx)
	if err != nil {
		// 数据源不可达：fail-open
		log.Warnf("⚠️ 盘中数据不可达，闸门放行: %v", err)
		return &Decision{
			Allow:  true,
			Method: "no_data",
			Reason: fmt.Sprintf("no_data(fail_open: %v)", err),
		}
	}

	now := g.now()
	elapsed := g.hours.MinutesSinceOpen(now)
	if elapsed < minMinutesToJudge {
		return &Decision{
			Allow:  true,
			Method: "too_early",
			Reason: fmt.Sprintf("too_early(%.1fmin since open)", elapsed),
		}
	}

	// 回看窗口可能跨夜，先裁掉前一交易时段的 K 线
	bars = sessionBars(bars, now, elapsed)
	if len(bars) < minIntradayBars {
		return &Decision{
			Allow:  true,
			Method: "no_data",
			Reason: fmt.Sprintf("no_data(fail_open: bars=%d<%d)", len(bars), minIntradayBars),
		}
	}

	d := g.evaluateTimeframes(bars, now)

	if g.cfg.GetLenientMode() {
		// 宽松模式：盘中走平或转正即放行
		d.Allow = d.WeightedAvg >= 0
		d.Method = "lenient"
		if d.Allow {
			d.Reason = fmt.Sprintf("lenient_flat_or_positive(avg=%.3f)", d.WeightedAvg)
		} else {
			d.Reason = fmt.Sprintf("lenient_blocked(avg=%.3f<0)", d.WeightedAvg)
		}
		g.logDecision(d, dailyChangePercent)
		return d
	}

	// 严格模式：一致性回升 或 区间位置回升
	change5m := d.fiveMinuteChange()
	positiveRatio := d.positiveRatio()
	consistent := d.WeightedAvg > strictWeightedAvgMin &&
		positiveRatio >= strictPositiveRatio &&
		change5m > 0
	recovering := d.IsRecovering && d.WeightedAvg > 0

	d.Method = "strict"
	switch {
	case consistent:
		d.Allow = true
		d.Reason = fmt.Sprintf("consistently_recovering(avg=%.3f, positive=%.0f%%, 5m=%.3f)",
			d.WeightedAvg, positiveRatio*100, change5m)
	case recovering:
		d.Allow = true
		d.Reason = fmt.Sprintf("range_recovering(rangePos=%.2f, avg=%.3f)", d.RangePosition, d.WeightedAvg)
	default:
		d.Allow = false
		d.Reason = fmt.Sprintf("blocked(avg=%.3f, positive=%.0f%%, 5m=%.3f, rangePos=%.2f)",
			d.WeightedAvg, positiveRatio*100, change5m, d.RangePosition)
	}
	g.logDecision(d, dailyChangePercent)
	return d
}

// intradayBars 拉取基准指数 1 分钟 K 线（2 分钟 TTL 缓存）
func (g *Gate) intradayBars(ctx context.Context) ([]domain.Bar, error) {
	symbol := g.cfg.GetBenchmarkSymbol()
	if cached, ok := g.barCache.Get(symbol); ok {
		return cached, nil
	}
	bars, err := g.data.GetBars(ctx, symbol, ports.Interval1Min, 8*time.Hour)
	if err != nil {
		return nil, err
	}
	g.barCache.Set(symbol, bars, barCacheTTL)
	return bars, nil
}

// sessionBars 只保留当前交易时段的 K 线。
// 混入前一时段的数据会扭曲日内高低点和 4 小时周期。
func sessionBars(bars []domain.Bar, now time.Time, minutesSinceOpen float64) []domain.Bar {
	open := now.Add(-time.Duration(minutesSinceOpen * float64(time.Minute)))
	for i, b := range bars {
		if !b.Time.Before(open) {
			return bars[i:]
		}
	}
	return nil
}

// evaluateTimeframes 计算各已走完周期的涨跌、加权均值与日内区间位置
func (g *Gate) evaluateTimeframes(bars []domain.Bar, now time.Time) *Decision {
	d := &Decision{}

	current := bars[len(bars)-1].Close
	dayHigh, dayLow := bars[0].High, bars[0].Low
	for _, b := range bars {
		if b.High > dayHigh {
			dayHigh = b.High
		}
		if b.Low < dayLow {
			dayLow = b.Low
		}
	}

	var weightedSum, weightSum float64
	for _, tf := range timeframeWeights {
		ref, ok := closeAt(bars, now.Add(-tf.Window))
		if !ok || ref <= 0 {
			// 该周期尚未走完（或无参考价），不参与评估
			continue
		}
		chg := (current - ref) / ref * 100
		d.Timeframes = append(d.Timeframes, TimeframeChange{
			Window:        tf.Window,
			ChangePercent: chg,
			Weight:        tf.Weight,
		})
		weightedSum += chg * tf.Weight
		weightSum += tf.Weight
	}
	if weightSum > 0 {
		d.WeightedAvg = weightedSum / weightSum
	}

	if dayHigh > dayLow {
		d.RangePosition = (current - dayLow) / (dayHigh - dayLow)
	}
	d.IsRecovering = d.RangePosition > recoveringRangePos && d.fiveMinuteChange() > 0

	return d
}

// closeAt 返回不晚于 t 的最后一根 K 线收盘价
func closeAt(bars []domain.Bar, t time.Time) (float64, bool) {
	var (
		found bool
		price float64
	)
	for _, b := range bars {
		if b.Time.After(t) {
			break
		}
		price = b.Close
		found = true
	}
	return price, found
}

func (d *Decision) fiveMinuteChange() float64 {
	for _, tf := range d.Timeframes {
		if tf.Window == 5*time.Minute {
			return tf.ChangePercent
		}
	}
	return 0
}

func (d *Decision) positiveRatio() float64 {
	if len(d.Timeframes) == 0 {
		return 0
	}
	positive := 0
	for _, tf := range d.Timeframes {
		if tf.ChangePercent > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(d.Timeframes))
}

func (g *Gate) logDecision(d *Decision, dailyChange float64) {
	if d.Allow {
		log.Infof("🟢 方向闸门放行: daily=%.2f%% %s", dailyChange, d.Reason)
	} else {
		log.Infof("🔴 方向闸门拦截: daily=%.2f%% %s", dailyChange, d.Reason)
	}
}
