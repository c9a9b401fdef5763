package engine

import (
	"github.com/stockbot/gostock/internal/antichurn"
	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
)

// 管理面访问入口：只读快照 + 显式配置变更，不直接暴露内部状态。

// Status 引擎运行状态
type Status struct {
	Enabled     bool                      `json:"enabled"`
	Mode        domain.TradeMode          `json:"mode"`
	MarketOpen  bool                      `json:"marketOpen"`
	TradesToday int                       `json:"tradesToday"`
	Rotation    antichurn.RotationDecision `json:"rotation"`
	PendingBuys int                       `json:"pendingBuys"`
	ActiveStops int                       `json:"activeStops"`
	// LastGate 最近一轮的方向闸门结果；还没跑过完整一轮时为 nil
	LastGate *GateSnapshot `json:"lastGate,omitempty"`
}

// Status 当前状态快照
func (e *Engine) Status() Status {
	cfg := e.cfg.Get()
	return Status{
		Enabled:     cfg.Enabled,
		Mode:        cfg.Mode,
		MarketOpen:  e.hours.IsOpen(e.now()),
		TradesToday: e.sched.TradesToday(),
		Rotation:    e.guard.CheckRotationFrequency(),
		PendingBuys: len(e.sched.PendingBuys()),
		ActiveStops: len(e.stops.Snapshot()),
		LastGate:    e.lastGate(),
	}
}

// Config 当前交易配置副本
func (e *Engine) Config() config.TradingConfig { return e.cfg.Get() }

// UpdateConfig 变更交易配置（校验 + 整体落盘）
func (e *Engine) UpdateConfig(mutate func(*config.TradingConfig)) (config.TradingConfig, error) {
	return e.cfg.Update(mutate)
}

// SetEnabled 启停开关
func (e *Engine) SetEnabled(enabled bool) (config.TradingConfig, error) {
	return e.cfg.SetEnabled(enabled)
}

// RecentTrades 最近 n 条交易记录
func (e *Engine) RecentTrades(n int) []domain.TradeRecord { return e.tradeLog.Recent(n) }

// StopsSnapshot 当前全部移动止损
func (e *Engine) StopsSnapshot() map[string]domain.TrailingStop { return e.stops.Snapshot() }

// PendingBuys 延迟买入队列快照
func (e *Engine) PendingBuys() []domain.PendingBuy { return e.sched.PendingBuys() }
