package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/pkg/persistence"
)

const (
	tradeLogStore   = "trades-log"
	maxTradeRecords = 2000
)

// TradeLog 交易日志：追加写、同步落盘、保留最近 2000 条
//
// 这是反频繁交易守卫的事实来源（最近买入时间、7 天卖出次数
// 都从这里重建），全量历史归档走 sqlite。
type TradeLog struct {
	mu      sync.Mutex
	store   persistence.Store
	records []domain.TradeRecord
}

// NewTradeLog 创建并从磁盘恢复交易日志
func NewTradeLog(svc persistence.Service) *TradeLog {
	t := &TradeLog{store: svc.NewStore(tradeLogStore)}
	if err := t.store.Load(&t.records); err != nil {
		if err != persistence.ErrNotExists {
			log.Warnf("⚠️ 交易日志加载失败，从空日志开始: %v", err)
		}
		t.records = nil
	}
	return t
}

// Append 追加一条记录并立即落盘，超出上限时裁掉最旧的
func (t *TradeLog) Append(r domain.TradeRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, r)
	if len(t.records) > maxTradeRecords {
		t.records = t.records[len(t.records)-maxTradeRecords:]
	}
	return t.store.Save(t.records)
}

// LastBuy 该标的最近一次成功买入
func (t *TradeLog) LastBuy(symbol string) *domain.TradeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	for i := len(t.records) - 1; i >= 0; i-- {
		r := t.records[i]
		if r.Side == domain.SideBuy && r.Status == domain.TradeStatusExecuted &&
			strings.EqualFold(r.Symbol, symbol) {
			cp := r
			return &cp
		}
	}
	return nil
}

// SellsSince t 之后的成功卖出次数
func (t *TradeLog) SellsSince(since time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.records {
		if r.Side == domain.SideSell && r.Status == domain.TradeStatusExecuted &&
			r.Timestamp.After(since) {
			n++
		}
	}
	return n
}

// Recent 最近 n 条记录，新的在前
func (t *TradeLog) Recent(n int) []domain.TradeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > len(t.records) {
		n = len(t.records)
	}
	out := make([]domain.TradeRecord, 0, n)
	for i := len(t.records) - 1; i >= len(t.records)-n; i-- {
		out = append(out, t.records[i])
	}
	return out
}
