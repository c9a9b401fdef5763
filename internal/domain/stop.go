package domain

import "time"

// TrailingStop 单个持仓的移动止损
// 不变量：StopPrice 只会上调（棘轮），更新序列中永不放松。
type TrailingStop struct {
	Symbol          string    `json:"symbol"`
	EntryPrice      float64   `json:"entryPrice"`
	StopPrice       float64   `json:"stopPrice"`
	StopLossPercent float64   `json:"stopLossPercent"`
	// ProtectedGainPercent 止损价之上锁定的收益
	ProtectedGainPercent float64   `json:"protectedGainPercent"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Triggered 当前价是否触发止损
func (ts *TrailingStop) Triggered(currentPrice float64) bool {
	return ts != nil && ts.StopPrice > 0 && currentPrice > 0 && currentPrice <= ts.StopPrice
}
