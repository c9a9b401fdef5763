package marketdata

import "time"

// NYSEHours 美股常规时段（美东 9:30–16:00，周一至周五）
// 不处理节假日；ForceOpen 用于纸面模式下的盘外联调。
type NYSEHours struct {
	loc       *time.Location
	ForceOpen bool
}

// NewNYSEHours 创建交易时段服务
func NewNYSEHours(forceOpen bool) *NYSEHours {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	return &NYSEHours{loc: loc, ForceOpen: forceOpen}
}

// sessionOpen 当日开盘时刻（美东 9:30）
func (h *NYSEHours) sessionOpen(now time.Time) time.Time {
	et := now.In(h.loc)
	return time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, h.loc)
}

// IsOpen 当前是否在常规交易时段内
func (h *NYSEHours) IsOpen(now time.Time) bool {
	if h.ForceOpen {
		return true
	}
	et := now.In(h.loc)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := h.sessionOpen(now)
	close := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, h.loc)
	return !et.Before(open) && et.Before(close)
}

// MinutesSinceOpen 距当日开盘的分钟数，开盘前为负
func (h *NYSEHours) MinutesSinceOpen(now time.Time) float64 {
	return now.In(h.loc).Sub(h.sessionOpen(now)).Minutes()
}
