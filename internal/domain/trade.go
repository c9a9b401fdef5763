package domain

import "time"

// Side 交易方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeStatus 交易状态
type TradeStatus string

const (
	TradeStatusExecuted TradeStatus = "executed"
	TradeStatusFailed   TradeStatus = "failed"
)

// TradeMode 交易模式
type TradeMode string

const (
	TradeModePaper TradeMode = "paper"
	TradeModeLive  TradeMode = "live"
)

// TradeRecord 一条交易记录
// 追加写入，落盘后不再修改。引擎用它重建"某标的最近一次买入时间"
// 和"近 7 天卖出次数"。
type TradeRecord struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Quantity  float64     `json:"quantity"`
	Price     float64     `json:"price"`
	Reason    string      `json:"reason"`
	Status    TradeStatus `json:"status"`
	Mode      TradeMode   `json:"mode"`
	Timestamp time.Time   `json:"timestamp"`
}

// Action 交易信号动作
type Action string

const (
	ActionHold        Action = "HOLD"
	ActionBuy         Action = "BUY"
	ActionExtremeBuy  Action = "EXTREME_BUY"
	ActionSell        Action = "SELL"
	ActionExtremeSell Action = "EXTREME_SELL"
)

// IsBuy 是否买入类动作
func (a Action) IsBuy() bool { return a == ActionBuy || a == ActionExtremeBuy }

// IsSell 是否卖出类动作
func (a Action) IsSell() bool { return a == ActionSell || a == ActionExtremeSell }
