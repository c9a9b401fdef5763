package signal

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
)

var log = logrus.WithField("module", "signal")

// Evaluation 一次信号评估的结果
// Reasons 是面向审计的可读说明，按产生顺序排列。
type Evaluation struct {
	Symbol string        `json:"symbol"`
	Action domain.Action `json:"action"`
	Score  float64       `json:"score"`
	// TechnicalOverride 本次卖出是否由技术面恶化突破动量保护产生
	TechnicalOverride bool     `json:"technicalOverride,omitempty"`
	Reasons           []string `json:"reasons"`
}

func (e *Evaluation) addReason(format string, args ...interface{}) {
	e.Reasons = append(e.Reasons, fmt.Sprintf(format, args...))
}

// BuyContext 买入评估的外部状态
type BuyContext struct {
	MarketPositive bool
	OpenPositions  []domain.Position
}

// Evaluator 把综合分（加上持仓盈亏）映射为交易动作
type Evaluator struct {
	cfg *config.TradingConfig
}

// NewEvaluator 创建评估器
func NewEvaluator(cfg *config.TradingConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// EvaluateBuy 买入评估
// 阈值随市场方向切换（方向为正用宽松阈值）；任一持仓进入动量保护区时
// 完全否决新买入——大赢家在跑的时候不加风险。
func (e *Evaluator) EvaluateBuy(ticker *domain.Ticker, score float64, ctx BuyContext) *Evaluation {
	ev := &Evaluation{Symbol: ticker.Symbol, Action: domain.ActionHold, Score: score}

	// 动量保护否决
	for i := range ctx.OpenPositions {
		p := &ctx.OpenPositions[i]
		gain := p.GainPercent()
		if p.UnrealizedPLPercent != 0 {
			gain = p.UnrealizedPLPercent
		}
		if gain >= e.cfg.ProtectedPositionPercent {
			ev.addReason("momentum_protection_veto(%s +%.1f%% >= %.1f%%): 保护期内暂停新买入",
				p.Symbol, gain, e.cfg.ProtectedPositionPercent)
			return ev
		}
	}

	threshold := e.cfg.BuyThresholdMarketDown
	if ctx.MarketPositive {
		threshold = e.cfg.BuyThresholdMarketUp
	}

	switch {
	case score >= e.cfg.ExtremeBuyThreshold:
		ev.Action = domain.ActionExtremeBuy
		ev.addReason("extreme_buy(score=%.2f >= %.2f)", score, e.cfg.ExtremeBuyThreshold)
	case score >= threshold:
		ev.Action = domain.ActionBuy
		ev.addReason("buy(score=%.2f >= %.2f, marketPositive=%v)", score, threshold, ctx.MarketPositive)
	default:
		ev.addReason("hold(score=%.2f < %.2f)", score, threshold)
	}
	return ev
}

// EvaluateSell 卖出评估
// 优先级：极端卖出无条件 > 技术面恶化突破保护 > 普通卖出（受动量保护约束）。
func (e *Evaluator) EvaluateSell(ticker *domain.Ticker, score float64, position *domain.Position) *Evaluation {
	ev := &Evaluation{Symbol: ticker.Symbol, Action: domain.ActionHold, Score: score}

	gain := position.UnrealizedPLPercent
	if gain == 0 {
		gain = position.GainPercent()
	}
	protected := gain >= e.cfg.ProtectedPositionPercent

	switch {
	case score <= e.cfg.ExtremeSellThreshold:
		ev.Action = domain.ActionExtremeSell
		ev.addReason("extreme_sell(score=%.2f <= %.2f): 无条件卖出", score, e.cfg.ExtremeSellThreshold)

	case score <= e.cfg.TechnicalOverrideThreshold && protected:
		ev.Action = domain.ActionSell
		ev.TechnicalOverride = true
		ev.addReason("technical_override(score=%.2f <= %.2f, gain=+%.1f%%): 技术面恶化突破动量保护",
			score, e.cfg.TechnicalOverrideThreshold, gain)

	case score <= e.cfg.SellThreshold:
		if protected && e.cfg.MomentumProtectionEnabled {
			ev.addReason("momentum_protection_hold(score=%.2f, gain=+%.1f%% >= %.1f%%): 保护持仓不卖",
				score, gain, e.cfg.ProtectedPositionPercent)
		} else {
			ev.Action = domain.ActionSell
			ev.addReason("sell(score=%.2f <= %.2f, gain=%.1f%%)", score, e.cfg.SellThreshold, gain)
		}

	default:
		ev.addReason("hold(score=%.2f, gain=%.1f%%)", score, gain)
	}

	log.Debugf("📊 卖出评估: symbol=%s score=%.2f gain=%.1f%% action=%s",
		ticker.Symbol, score, gain, ev.Action)
	return ev
}
