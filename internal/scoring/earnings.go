package scoring

import (
	"math"

	"github.com/stockbot/gostock/internal/domain"
)

const (
	earningsWindowDays   = 30.0
	postEarningsFadeDays = 3.0
	// marketCloseHour 交易所本地收盘小时（半日修正基准）
	marketCloseHour = 16
)

// earningsScore 财报临近分：
// 财报前 0–30 天为 ((30−d)/30)²，随临近二次加速；30 天外为 0；
// 财报后 0–3 天给出衰减中的负值（惩罚财报后漂移）；
// 交易所本地时间 16 点前按半日修正（财报实际更近半天）。
func (s *Scorer) earningsScore(t *domain.Ticker) float64 {
	if t.EarningsDate == nil {
		return 0
	}

	now := s.now().In(s.loc)
	days := t.EarningsDate.In(s.loc).Sub(now).Hours() / 24

	// 收盘前财报视为更近半天
	if now.Hour() < marketCloseHour {
		days -= 0.5
	}

	switch {
	case days >= 0 && days <= earningsWindowDays:
		v := (earningsWindowDays - days) / earningsWindowDays
		return v * v
	case days < 0 && days >= -postEarningsFadeDays:
		// 财报刚过：负值随时间衰减到 0
		since := math.Abs(days)
		return -0.5 * (1 - since/postEarningsFadeDays)
	default:
		return 0
	}
}
