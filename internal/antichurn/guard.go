package antichurn

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
)

var log = logrus.WithField("module", "antichurn")

// TradeSource 交易日志的只读视图（由 scheduler 的日志存储实现）
type TradeSource interface {
	// LastBuy 返回该标的最近一次成功买入记录，没有则返回 nil
	LastBuy(symbol string) *domain.TradeRecord
	// SellsSince 返回 t 之后的成功卖出次数
	SellsSince(t time.Time) int
}

// Config 反频繁交易参数
type Config interface {
	GetMinHoldDays() int
	GetMaxRotationsPerWeek() int
}

// HoldDecision 持有期检查结果
type HoldDecision struct {
	Allow     bool          `json:"allow"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Reason    string        `json:"reason"`
}

// RotationDecision 轮换频率检查结果
// 只约束新买入，卖出永远放行（降风险优先于防换手）。
type RotationDecision struct {
	AllowBuys     bool   `json:"allowBuys"`
	SellsInWindow int    `json:"sellsInWindow"`
	Reason        string `json:"reason"`
}

const rotationWindow = 7 * 24 * time.Hour

// Guard 反频繁交易守卫：最短持有期 + 滚动轮换频率上限
type Guard struct {
	cfg    Config
	trades TradeSource
	now    func() time.Time
}

// New 创建守卫
func New(cfg Config, trades TradeSource) *Guard {
	return &Guard{cfg: cfg, trades: trades, now: time.Now}
}

// SetNowFunc 注入虚拟时钟（测试用）
func (g *Guard) SetNowFunc(now func() time.Time) { g.now = now }

// CheckHoldPeriod 最短持有期检查
// 极端卖出与移动止损触发无条件放行（保本优先）；
// 找不到买入记录（引擎启动前已有的持仓）也放行。
func (g *Guard) CheckHoldPeriod(symbol string, isExtremeSell, isStopTrigger bool) HoldDecision {
	if isExtremeSell {
		return HoldDecision{Allow: true, Reason: "extreme_sell_bypass"}
	}
	if isStopTrigger {
		return HoldDecision{Allow: true, Reason: "trailing_stop_bypass"}
	}

	lastBuy := g.trades.LastBuy(symbol)
	if lastBuy == nil {
		return HoldDecision{Allow: true, Reason: "no_buy_record(pre_existing_position)"}
	}

	minHold := time.Duration(g.cfg.GetMinHoldDays()) * 24 * time.Hour
	elapsed := g.now().Sub(lastBuy.Timestamp)
	if elapsed < minHold {
		remaining := minHold - elapsed
		log.Debugf("⏳ 持有期未满: symbol=%s elapsed=%s remaining=%s", symbol, elapsed, remaining)
		return HoldDecision{
			Allow:     false,
			Remaining: remaining,
			Reason: fmt.Sprintf("hold_period(%s held %.1fd < %dd, remaining %.1fd)",
				symbol, elapsed.Hours()/24, g.cfg.GetMinHoldDays(), remaining.Hours()/24),
		}
	}
	return HoldDecision{
		Allow:  true,
		Reason: fmt.Sprintf("hold_period_ok(%.1fd)", elapsed.Hours()/24),
	}
}

// CheckRotationFrequency 滚动 7 天轮换频率检查
func (g *Guard) CheckRotationFrequency() RotationDecision {
	sells := g.trades.SellsSince(g.now().Add(-rotationWindow))
	max := g.cfg.GetMaxRotationsPerWeek()
	if max > 0 && sells >= max {
		return RotationDecision{
			AllowBuys:     false,
			SellsInWindow: sells,
			Reason:        fmt.Sprintf("rotation_cap(%d sells in 7d >= %d): 暂停新买入", sells, max),
		}
	}
	return RotationDecision{
		AllowBuys:     true,
		SellsInWindow: sells,
		Reason:        fmt.Sprintf("rotation_ok(%d/%d in 7d)", sells, max),
	}
}
