package engine

import (
	"fmt"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

// TradeDecision 单个标的在本轮的处置
type TradeDecision struct {
	Symbol  string        `json:"symbol"`
	Action  domain.Action `json:"action"`
	Score   float64       `json:"score,omitempty"`
	Reason  string        `json:"reason"`
	OrderID string        `json:"orderId,omitempty"`
}

// GateSnapshot 本轮市场方向闸门的结论
type GateSnapshot struct {
	Allow       bool    `json:"allow"`
	Reason      string  `json:"reason"`
	DailyChange float64 `json:"dailyChange"`
}

// CycleResult 一轮评估的完整产出
// Reasoning 是按发生顺序排列的可读决策轨迹，是一等输出而不是附带日志。
type CycleResult struct {
	StartedAt   time.Time       `json:"startedAt"`
	FinishedAt  time.Time       `json:"finishedAt"`
	Reasoning   []string        `json:"reasoning"`
	Executed    []TradeDecision `json:"executed"`
	Skipped     []TradeDecision `json:"skipped"`
	Protected   []TradeDecision `json:"protected"`
	Gate        GateSnapshot    `json:"gate"`
	TradesToday int             `json:"tradesToday"`
}

func (r *CycleResult) addReason(format string, args ...interface{}) {
	r.Reasoning = append(r.Reasoning, fmt.Sprintf(format, args...))
}

func (r *CycleResult) executed(d TradeDecision) {
	r.Executed = append(r.Executed, d)
	r.addReason("✅ %s %s: %s", d.Action, d.Symbol, d.Reason)
}

func (r *CycleResult) skipped(d TradeDecision) {
	r.Skipped = append(r.Skipped, d)
	r.addReason("⏭️ %s %s: %s", d.Action, d.Symbol, d.Reason)
}

func (r *CycleResult) protected(d TradeDecision) {
	r.Protected = append(r.Protected, d)
	r.addReason("🛡️ %s: %s", d.Symbol, d.Reason)
}
