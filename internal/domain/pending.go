package domain

import "time"

// PendingBuy 延迟买入队列中的一条记录
// 不变量：同一 symbol 同时最多存在一条；执行、取消或市场转向时移除
// （防御性标的白名单除外）。
type PendingBuy struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
	// MarketPositive 入队时的市场方向
	MarketPositive bool      `json:"marketPositive"`
	QueuedAt       time.Time `json:"queuedAt"`
	ExecuteAfter   time.Time `json:"executeAfter"`
}

// Matured 是否已到执行时间
func (p *PendingBuy) Matured(now time.Time) bool {
	return p != nil && !now.Before(p.ExecuteAfter)
}
