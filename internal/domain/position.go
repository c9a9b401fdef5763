package domain

import "math"

// Position 持仓（外部来源，对本引擎只读）
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	// UnrealizedPLPercent 由上游给出；为 0 时可用 GainPercent 现算
	UnrealizedPLPercent float64 `json:"unrealizedPlPercent"`
}

// GainPercent 计算未实现收益百分比（入场价无效或结果非法时返回 0）
func (p *Position) GainPercent() float64 {
	if p == nil || p.AvgEntryPrice <= 0 || p.CurrentPrice <= 0 {
		return 0
	}
	g := (p.CurrentPrice - p.AvgEntryPrice) / p.AvgEntryPrice * 100
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0
	}
	return g
}
