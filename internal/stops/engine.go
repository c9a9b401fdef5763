package stops

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/pkg/persistence"
)

var log = logrus.WithField("module", "stops")

const storeName = "trailing-stops"

// Trigger 止损触发事件
type Trigger struct {
	Symbol        string  `json:"symbol"`
	StopPrice     float64 `json:"stopPrice"`
	CurrentPrice  float64 `json:"currentPrice"`
	ProtectedGain float64 `json:"protectedGain"`
	Reason        string  `json:"reason"`
}

// Engine 移动止损引擎：只上移、不下移的棘轮式保护
//
// 止损档位随浮盈增长：浮盈每翻一档（2%），止损线相应收紧，
// 已锁定的止损价永不回撤。
type Engine struct {
	mu    sync.Mutex
	store persistence.Store
	stops map[string]*domain.TrailingStop
	now   func() time.Time
}

// NewEngine 创建引擎并从磁盘恢复已有止损
func NewEngine(svc persistence.Service) (*Engine, error) {
	e := &Engine{
		store: svc.NewStore(storeName),
		stops: make(map[string]*domain.TrailingStop),
		now:   time.Now,
	}
	if err := e.store.Load(&e.stops); err != nil {
		if err != persistence.ErrNotExists {
			// 损坏的止损文件不应让引擎瘫痪，从空状态重建
			log.Warnf("⚠️ 止损文件加载失败，重建: %v", err)
		}
		e.stops = make(map[string]*domain.TrailingStop)
	}
	return e, nil
}

// SetNowFunc 注入虚拟时钟（测试用）
func (e *Engine) SetNowFunc(now func() time.Time) { e.now = now }

// calculateStopLossPercent 按浮盈计算止损档位
// 浮盈 ≤0 无档位；否则以 2% 为一档向下取整，最低 1%。
func calculateStopLossPercent(gainPercent float64) float64 {
	if gainPercent <= 0 || math.IsNaN(gainPercent) || math.IsInf(gainPercent, 0) {
		return 0
	}
	tier := math.Floor(gainPercent/2/2) * 2
	return math.Max(1, tier)
}

// UpdateStops 按最新持仓刷新止损线
// 规则：
//   - 浮盈首次越过 0 时建立止损；
//   - 已有止损只允许上移（棘轮），新算出的止损价更低时保持不变；
//   - 持仓已平仓的止损记录被清除。
func (e *Engine) UpdateStops(positions []domain.Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	held := make(map[string]bool, len(positions))
	changed := false

	for _, pos := range positions {
		held[pos.Symbol] = true
		gain := pos.GainPercent()
		pct := calculateStopLossPercent(gain)
		if pct <= 0 {
			continue
		}
		// 止损价锚定入场价：锁定 gain−pct 的浮盈
		newStop := pos.AvgEntryPrice * (1 + (gain-pct)/100)
		if newStop <= 0 {
			continue
		}

		existing, ok := e.stops[pos.Symbol]
		if !ok {
			e.stops[pos.Symbol] = &domain.TrailingStop{
				Symbol:               pos.Symbol,
				EntryPrice:           pos.AvgEntryPrice,
				StopPrice:            newStop,
				StopLossPercent:      pct,
				ProtectedGainPercent: gain - pct,
				UpdatedAt:            e.now(),
			}
			changed = true
			log.Infof("🛡️ 建立止损: %s stop=%.2f (gain=%.1f%% tier=%.0f%%)",
				pos.Symbol, newStop, gain, pct)
			continue
		}
		if newStop > existing.StopPrice {
			log.Infof("🛡️ 止损上移: %s %.2f -> %.2f (gain=%.1f%%)",
				pos.Symbol, existing.StopPrice, newStop, gain)
			existing.StopPrice = newStop
			existing.StopLossPercent = pct
			existing.ProtectedGainPercent = gain - pct
			existing.UpdatedAt = e.now()
			changed = true
		}
	}

	for symbol := range e.stops {
		if !held[symbol] {
			delete(e.stops, symbol)
			changed = true
			log.Infof("🧹 清除已平仓止损: %s", symbol)
		}
	}

	if !changed {
		return nil
	}
	return e.store.Save(e.stops)
}

// CheckTriggers 检查当前价格是否击穿止损线
// 只报告触发事件，不执行卖出，由调用方走正常卖出链路。
func (e *Engine) CheckTriggers(positions []domain.Position) []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()

	var triggered []Trigger
	for _, pos := range positions {
		stop, ok := e.stops[pos.Symbol]
		if !ok || pos.CurrentPrice <= 0 {
			continue
		}
		if stop.Triggered(pos.CurrentPrice) {
			log.Warnf("🔴 止损触发: %s price=%.2f <= stop=%.2f (锁定 %.1f%%)",
				pos.Symbol, pos.CurrentPrice, stop.StopPrice, stop.ProtectedGainPercent)
			triggered = append(triggered, Trigger{
				Symbol:        pos.Symbol,
				StopPrice:     stop.StopPrice,
				CurrentPrice:  pos.CurrentPrice,
				ProtectedGain: stop.ProtectedGainPercent,
				Reason:        "trailing_stop_triggered",
			})
		}
	}
	return triggered
}

// Get 返回某标的当前止损（副本），没有则返回 nil
func (e *Engine) Get(symbol string) *domain.TrailingStop {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stops[symbol]; ok {
		cp := *s
		return &cp
	}
	return nil
}

// Snapshot 返回全部止损的副本（控制面用）
func (e *Engine) Snapshot() map[string]domain.TrailingStop {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.TrailingStop, len(e.stops))
	for k, v := range e.stops {
		out[k] = *v
	}
	return out
}

// Remove 删除某标的的止损并落盘（卖出完成后调用）
func (e *Engine) Remove(symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.stops[symbol]; !ok {
		return nil
	}
	delete(e.stops, symbol)
	return e.store.Save(e.stops)
}
