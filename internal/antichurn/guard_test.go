package antichurn

import (
	"testing"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

type fakeCfg struct {
	minHold      int
	maxRotations int
}

func (c fakeCfg) GetMinHoldDays() int         { return c.minHold }
func (c fakeCfg) GetMaxRotationsPerWeek() int { return c.maxRotations }

type fakeTrades struct {
	lastBuy map[string]*domain.TradeRecord
	sells   []time.Time
}

func (t *fakeTrades) LastBuy(symbol string) *domain.TradeRecord {
	return t.lastBuy[symbol]
}

func (t *fakeTrades) SellsSince(since time.Time) int {
	n := 0
	for _, ts := range t.sells {
		if ts.After(since) {
			n++
		}
	}
	return n
}

func newGuard(cfg fakeCfg, trades *fakeTrades, now time.Time) *Guard {
	g := New(cfg, trades)
	g.SetNowFunc(func() time.Time { return now })
	return g
}

func TestHoldPeriodBlocksEarlySell(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	trades := &fakeTrades{lastBuy: map[string]*domain.TradeRecord{
		"AAPL": {Symbol: "AAPL", Side: domain.SideBuy, Timestamp: now.Add(-24 * time.Hour)},
	}}
	g := newGuard(fakeCfg{minHold: 3, maxRotations: 4}, trades, now)

	d := g.CheckHoldPeriod("AAPL", false, false)
	if d.Allow {
		t.Fatal("买入 1 天就卖出应被持有期拦截")
	}
	wantRemaining := 2 * 24 * time.Hour
	if d.Remaining != wantRemaining {
		t.Errorf("剩余持有时间错误: got %s want %s", d.Remaining, wantRemaining)
	}
}

func TestHoldPeriodAllowsAfterMinHold(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	trades := &fakeTrades{lastBuy: map[string]*domain.TradeRecord{
		"AAPL": {Symbol: "AAPL", Side: domain.SideBuy, Timestamp: now.Add(-80 * time.Hour)},
	}}
	g := newGuard(fakeCfg{minHold: 3, maxRotations: 4}, trades, now)

	if d := g.CheckHoldPeriod("AAPL", false, false); !d.Allow {
		t.Errorf("已持有 80 小时应放行: %s", d.Reason)
	}
}

func TestHoldPeriodBypasses(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	trades := &fakeTrades{lastBuy: map[string]*domain.TradeRecord{
		"AAPL": {Symbol: "AAPL", Side: domain.SideBuy, Timestamp: now.Add(-time.Hour)},
	}}
	g := newGuard(fakeCfg{minHold: 3, maxRotations: 4}, trades, now)

	if d := g.CheckHoldPeriod("AAPL", true, false); !d.Allow {
		t.Error("极端卖出必须绕过持有期")
	}
	if d := g.CheckHoldPeriod("AAPL", false, true); !d.Allow {
		t.Error("移动止损触发必须绕过持有期")
	}
}

func TestHoldPeriodNoBuyRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	g := newGuard(fakeCfg{minHold: 3, maxRotations: 4}, &fakeTrades{}, now)

	if d := g.CheckHoldPeriod("MSFT", false, false); !d.Allow {
		t.Errorf("无买入记录的持仓应放行: %s", d.Reason)
	}
}

func TestRotationCapBlocksBuysOnly(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	trades := &fakeTrades{sells: []time.Time{
		now.Add(-1 * 24 * time.Hour),
		now.Add(-2 * 24 * time.Hour),
		now.Add(-3 * 24 * time.Hour),
		now.Add(-4 * 24 * time.Hour),
	}}
	g := newGuard(fakeCfg{minHold: 3, maxRotations: 4}, trades, now)

	d := g.CheckRotationFrequency()
	if d.AllowBuys {
		t.Fatal("7 天内 4 次卖出达到上限应暂停买入")
	}
	if d.SellsInWindow != 4 {
		t.Errorf("窗口内卖出次数错误: got %d want 4", d.SellsInWindow)
	}
}

func TestRotationOldSellsExpire(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	trades := &fakeTrades{sells: []time.Time{
		now.Add(-8 * 24 * time.Hour),
		now.Add(-9 * 24 * time.Hour),
		now.Add(-10 * 24 * time.Hour),
		now.Add(-11 * 24 * time.Hour),
		now.Add(-1 * 24 * time.Hour),
	}}
	g := newGuard(fakeCfg{minHold: 3, maxRotations: 4}, trades, now)

	d := g.CheckRotationFrequency()
	if !d.AllowBuys {
		t.Fatalf("超过 7 天的卖出不应计入窗口: %s", d.Reason)
	}
	if d.SellsInWindow != 1 {
		t.Errorf("窗口内卖出次数错误: got %d want 1", d.SellsInWindow)
	}
}
