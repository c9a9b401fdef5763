package scoring

import (
	"math"

	"github.com/stockbot/gostock/internal/domain"
)

const (
	volumeScoreMin = -1.5
	volumeScoreMax = 1.5

	// pumpGuardThreshold 近段价格变化低于该值时，放量视为出货而非吸筹
	pumpGuardThreshold = -0.05
)

// volumeScore 量能分：2.5×(sigma−1)/10 − 1，范围 [−1.5, +1.5]。
// sigma 先乘盘中倍数修正；若近段价格变化 < −0.05%，强制取负
// （下跌中的放量不是买入信号）。
func (s *Scorer) volumeScore(t *domain.Ticker) float64 {
	if t.VolumeSigma == nil || math.IsNaN(*t.VolumeSigma) {
		return 0
	}

	sigma := *t.VolumeSigma
	if t.IntradayMultiplier > 0 {
		sigma *= t.IntradayMultiplier
	}

	score := clampF(2.5*(sigma-1)/10-1, volumeScoreMin, volumeScoreMax)

	if t.TrailingChangePercent != nil && *t.TrailingChangePercent < pumpGuardThreshold {
		score = -math.Abs(score)
	}
	return score
}

// pricePositionScore 60 日区间位置分：
// 位置 ≤10% 视为超卖（+1.5），≥90% 视为超买（−1.5），中间线性过渡。
func (s *Scorer) pricePositionScore(t *domain.Ticker) float64 {
	if t.Low60Day == nil || t.High60Day == nil || t.Price <= 0 {
		return 0
	}
	low, high := *t.Low60Day, *t.High60Day
	if high <= low {
		return 0
	}

	pos := (t.Price - low) / (high - low)
	switch {
	case pos <= 0.10:
		return 1.5
	case pos >= 0.90:
		return -1.5
	default:
		// 0.10 → +1.5，0.90 → −1.5
		return 1.5 - 3.0*(pos-0.10)/0.80
	}
}
