package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
)

// 漂移检测的回看窗口（分钟）与权重：近端权重大
var driftWindows = []struct {
	minutes int
	weight  float64
}{
	{5, 4}, {10, 3}, {15, 2}, {30, 1},
}

// driftScore 多周期加权的近段涨跌幅
// 数据不足（不满最长窗口的两根）时返回 false。
func driftScore(bars []domain.Bar, now time.Time) (float64, bool) {
	if len(bars) < 2 {
		return 0, false
	}
	current := bars[len(bars)-1].Close
	if current <= 0 {
		return 0, false
	}
	var sum, weight float64
	for _, w := range driftWindows {
		ref, ok := closeBefore(bars, now.Add(-time.Duration(w.minutes)*time.Minute))
		if !ok || ref <= 0 {
			continue
		}
		sum += (current - ref) / ref * 100 * w.weight
		weight += w.weight
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

// closeBefore 返回时间不晚于 t 的最后一根收盘价
func closeBefore(bars []domain.Bar, t time.Time) (float64, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Time.After(t) {
			return bars[i].Close, true
		}
	}
	return 0, false
}

// checkDrift 动量漂移检测：相对基准的近段加权涨跌幅跌破阈值
// 任何数据问题都作为"无信号"返回错误，由调用方记日志后继续。
func (e *Engine) checkDrift(ctx context.Context, symbol string, cfg *config.TradingConfig) (bool, float64, error) {
	bars, err := e.data.GetBars(ctx, symbol, ports.Interval5Min, time.Hour)
	if err != nil {
		return false, 0, errors.Wrapf(err, "drift: %s 取K线失败", symbol)
	}
	now := e.now()
	own, ok := driftScore(bars, now)
	if !ok {
		return false, 0, errors.Errorf("drift: %s 盘中数据不足", symbol)
	}

	relative := own
	if benchBars, err := e.data.GetBars(ctx, cfg.BenchmarkSymbol, ports.Interval5Min, time.Hour); err == nil {
		if bench, ok := driftScore(benchBars, now); ok {
			relative = own - bench
		}
	}
	return relative < cfg.DriftThreshold, relative, nil
}

// checkStagnation 滞涨检测：长时间窄幅震荡且分数不高
func (e *Engine) checkStagnation(ctx context.Context, symbol string, score float64, cfg *config.TradingConfig) (bool, error) {
	if score >= cfg.StagnationScoreCutoff {
		// 分数够高说明可能在蓄势，不按滞涨处理
		return false, nil
	}
	lookback := time.Duration(cfg.StagnationLookbackBars) * 5 * time.Minute
	bars, err := e.data.GetBars(ctx, symbol, ports.Interval5Min, lookback)
	if err != nil {
		return false, errors.Wrapf(err, "stagnation: %s 取K线失败", symbol)
	}
	if len(bars) < cfg.StagnationLookbackBars {
		return false, errors.Errorf("stagnation: %s 盘中数据不足 (%d/%d)",
			symbol, len(bars), cfg.StagnationLookbackBars)
	}

	low, high := bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	if low <= 0 {
		return false, errors.Errorf("stagnation: %s 无效价格", symbol)
	}
	rangePct := (high - low) / low * 100
	return rangePct < cfg.StagnationRangePercent, nil
}
