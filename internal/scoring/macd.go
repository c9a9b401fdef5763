package scoring

import "github.com/stockbot/gostock/internal/domain"

// MACD 调整范围
const (
	macdAdjMin = -2.5
	macdAdjMax = 2.5

	// histSlopeScale 柱状斜率到分数的缩放：斜率 0.5 视为满格
	histSlopeScale = 5.0
)

// macdAdjustment MACD 调整，范围 [−2.5, +2.5]。
// 优先级：预合成的多周期加权分 > 柱状斜率×区间位置因子 > 简单趋势启发式。
func (s *Scorer) macdAdjustment(t *domain.Ticker) float64 {
	m := t.MACD
	if m == nil {
		return 0
	}

	// 1) 预合成的多周期加权分
	if m.Combined != nil {
		return clampF(*m.Combined, macdAdjMin, macdAdjMax)
	}

	// 2) 柱状斜率 × 区间位置因子
	if len(m.Histogram) >= 3 && m.LineMax > m.LineMin {
		slope := histogramSlope(m.Histogram)
		raw := clampF(slope*histSlopeScale, macdAdjMin, macdAdjMax)

		// 区间位置因子：1.5 − |line − mid|/(max−min)
		// MACD 线处于区间中部时奖励，贴近极值时衰减。
		mid := (m.LineMax + m.LineMin) / 2
		factor := 1.5 - absF(m.Line-mid)/(m.LineMax-m.LineMin)
		if factor < 0 {
			factor = 0
		}
		return clampF(raw*factor, macdAdjMin, macdAdjMax)
	}

	// 3) 简单启发式
	return histogramHeuristic(m.Histogram)
}

// histogramSlope 最近三根柱状值的平均斜率
func histogramSlope(hist []float64) float64 {
	n := len(hist)
	if n < 2 {
		return 0
	}
	if n >= 3 {
		return ((hist[n-1] - hist[n-2]) + (hist[n-2] - hist[n-3])) / 2
	}
	return hist[n-1] - hist[n-2]
}

// histogramHeuristic 数据不足时的趋势启发式
func histogramHeuristic(hist []float64) float64 {
	n := len(hist)
	if n == 0 {
		return 0
	}
	last := hist[n-1]
	rising := n >= 2 && last > hist[n-2]

	switch {
	case last > 0 && rising:
		return 1.0
	case last > 0:
		return 0.5
	case last < 0 && rising:
		return -0.5
	case last < 0:
		return -1.0
	default:
		return 0
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
