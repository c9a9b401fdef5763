package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

// QueueBuy 将买入信号放入延迟队列，过了延迟窗口才会真正下单
// 同一标的已在队列中时拒绝重复排队。
func (s *Scheduler) QueueBuy(symbol string, price float64, reason string, marketPositive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	for _, p := range s.pending {
		if p.Symbol == symbol {
			return fmt.Errorf("标的 %s 已在延迟买入队列中", symbol)
		}
	}

	cfg := s.cfg.Get()
	now := s.now()
	pb := domain.PendingBuy{
		Symbol:         symbol,
		Price:          price,
		Reason:         reason,
		MarketPositive: marketPositive,
		QueuedAt:       now,
		ExecuteAfter:   now.Add(time.Duration(cfg.BuyDelayMinutes) * time.Minute),
	}
	s.pending = append(s.pending, pb)
	log.Infof("⏱️ 买入排队: %s @%.2f 延迟 %dm (%s)", symbol, price, cfg.BuyDelayMinutes, reason)
	return s.savePendingLocked()
}

// MaturedBuys 取出所有已过延迟窗口的买入并从队列移除
// 取出后由调用方重新走完整的下单检查，队列成熟不代表一定会成交。
func (s *Scheduler) MaturedBuys() []domain.PendingBuy {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var matured []domain.PendingBuy
	var remain []domain.PendingBuy
	for _, p := range s.pending {
		if p.Matured(now) {
			matured = append(matured, p)
		} else {
			remain = append(remain, p)
		}
	}
	if len(matured) == 0 {
		return nil
	}
	s.pending = remain
	if err := s.savePendingLocked(); err != nil {
		log.Warnf("⚠️ 延迟买入队列落盘失败: %v", err)
	}
	return matured
}

// CancelOnMarketFlip 市场方向转负时撤销队列中的普通买入
// 防御性标的（反向 ETF 等）本就是为下跌准备的，保留不撤。
// 返回被撤销的标的列表。
func (s *Scheduler) CancelOnMarketFlip() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Get()
	var cancelled []string
	var remain []domain.PendingBuy
	for _, p := range s.pending {
		if cfg.IsDefensive(p.Symbol) {
			remain = append(remain, p)
			continue
		}
		cancelled = append(cancelled, p.Symbol)
		log.Infof("🔴 市场转向，撤销延迟买入: %s (排队于 %s)", p.Symbol, p.QueuedAt.Format("15:04:05"))
	}
	if len(cancelled) == 0 {
		return nil
	}
	s.pending = remain
	if err := s.savePendingLocked(); err != nil {
		log.Warnf("⚠️ 延迟买入队列落盘失败: %v", err)
	}
	return cancelled
}

// PendingBuys 返回队列快照（控制面用）
func (s *Scheduler) PendingBuys() []domain.PendingBuy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingBuy, len(s.pending))
	copy(out, s.pending)
	return out
}

func (s *Scheduler) savePendingLocked() error {
	return s.pendingStore.Save(s.pending)
}
