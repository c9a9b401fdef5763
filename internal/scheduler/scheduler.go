package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/persistence"
)

var log = logrus.WithField("module", "scheduler")

const (
	countersStore = "daily-counters"
	pendingStore  = "pending-buys"

	// dayTradeWindow 当日往返次数的滚动统计窗口（对应监管的 5 个交易日）
	dayTradeWindow = 7 * 24 * time.Hour
)

// ConfigSource 提供当前生效的交易配置快照
type ConfigSource interface {
	Get() config.TradingConfig
}

// Decision 下单前置检查结果
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allow: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allow: false, Reason: reason} }

// dailyCounters 当日交易计数，按交易日（美东日期）滚动清零
// DayTrades 跨日保留：当日往返的限制按滚动窗口统计，不随交易日清零。
type dailyCounters struct {
	Date   string `json:"date"`
	Trades int    `json:"trades"`
	// DayTrades 窗口内每笔当日往返（买入当天卖出）的完成时间
	DayTrades []time.Time `json:"dayTrades,omitempty"`
	// LastBuyDate symbol -> 最近一次买入的交易日，用于识别当日往返
	LastBuyDate map[string]string `json:"lastBuyDate,omitempty"`
}

// Scheduler 下单调度器
//
// 负责每笔订单前的节流检查（开关、开盘状态、当日上限、冷却、黑名单），
// 以及延迟买入队列的排队/成熟/撤单。不触碰券商，只做放行判断。
type Scheduler struct {
	mu sync.Mutex

	cfg   ConfigSource
	hours ports.MarketHours
	loc   *time.Location
	now   func() time.Time

	counters      dailyCounters
	countersStore persistence.Store

	// symbol -> 最近一次成交时间，用于冷却
	lastTrade map[string]time.Time

	pending      []domain.PendingBuy
	pendingStore persistence.Store
}

// New 创建调度器并从磁盘恢复计数与待执行买入
func New(cfg ConfigSource, hours ports.MarketHours, svc persistence.Service) *Scheduler {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cfg:           cfg,
		hours:         hours,
		loc:           loc,
		now:           time.Now,
		countersStore: svc.NewStore(countersStore),
		lastTrade:     make(map[string]time.Time),
		pendingStore:  svc.NewStore(pendingStore),
	}
	if err := s.countersStore.Load(&s.counters); err != nil && err != persistence.ErrNotExists {
		log.Warnf("⚠️ 当日计数加载失败，从零开始: %v", err)
	}
	if err := s.pendingStore.Load(&s.pending); err != nil && err != persistence.ErrNotExists {
		log.Warnf("⚠️ 延迟买入队列加载失败，清空重建: %v", err)
		s.pending = nil
	}
	return s
}

// SetNowFunc 注入虚拟时钟（测试用）
func (s *Scheduler) SetNowFunc(now func() time.Time) { s.now = now }

// tradingDate 以美东时区界定交易日
func (s *Scheduler) tradingDate(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

// rollover 跨交易日时清零当日计数（持锁调用）
func (s *Scheduler) rollover(now time.Time) {
	date := s.tradingDate(now)
	if s.counters.Date == date {
		return
	}
	if s.counters.Date != "" {
		log.Infof("📅 交易日滚动: %s -> %s (前日成交 %d 笔)", s.counters.Date, date, s.counters.Trades)
	}
	// 往返记录跨日保留（按窗口淘汰）；买入日期换日即失效，直接丢弃
	s.counters = dailyCounters{Date: date, DayTrades: s.counters.DayTrades}
	s.pruneDayTradesLocked(now)
	if err := s.countersStore.Save(&s.counters); err != nil {
		log.Warnf("⚠️ 当日计数落盘失败: %v", err)
	}
}

// pruneDayTradesLocked 淘汰滚动窗口外的往返记录（持锁调用）
func (s *Scheduler) pruneDayTradesLocked(now time.Time) {
	kept := s.counters.DayTrades[:0]
	for _, ts := range s.counters.DayTrades {
		if now.Sub(ts) < dayTradeWindow {
			kept = append(kept, ts)
		}
	}
	s.counters.DayTrades = kept
}

// CanTrade 下单前置检查
// 顺序：总开关 -> 开盘状态 -> 黑名单 -> 当日上限 -> 往返上限 -> 冷却。
// 任一不通过立即返回，不继续后面的检查。
func (s *Scheduler) CanTrade(symbol string, side domain.Side) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Get()
	now := s.now()
	s.rollover(now)
	symbol = strings.ToUpper(symbol)

	if !cfg.Enabled {
		return deny("trading_disabled")
	}
	if !s.hours.IsOpen(now) {
		return deny("market_closed")
	}
	if cfg.IsBlacklisted(symbol) {
		return deny(fmt.Sprintf("blacklisted(%s)", symbol))
	}
	if s.counters.Trades >= cfg.MaxDailyTrades {
		return deny(fmt.Sprintf("daily_limit(%d/%d)", s.counters.Trades, cfg.MaxDailyTrades))
	}
	// 当日买入当日卖出构成一笔往返；窗口内达到上限时拦截这笔卖出
	if side == domain.SideSell && cfg.MaxDayTrades > 0 &&
		s.counters.LastBuyDate[symbol] == s.tradingDate(now) {
		s.pruneDayTradesLocked(now)
		if len(s.counters.DayTrades) >= cfg.MaxDayTrades {
			return deny(fmt.Sprintf("day_trade_limit(%d/%d)", len(s.counters.DayTrades), cfg.MaxDayTrades))
		}
	}
	if last, ok := s.lastTrade[symbol]; ok {
		cooldown := time.Duration(cfg.CooldownMinutes) * time.Minute
		if elapsed := now.Sub(last); elapsed < cooldown {
			return deny(fmt.Sprintf("cooldown(%s %.0fm/%dm)", symbol, elapsed.Minutes(), cfg.CooldownMinutes))
		}
	}
	return allow(fmt.Sprintf("ok(%s %s)", side, symbol))
}

// RecordTrade 记录一笔成交：累加当日计数、重置该标的冷却，
// 并维护当日往返的滚动窗口（买入记日期，当日卖出计一笔往返）。
func (s *Scheduler) RecordTrade(symbol string, side domain.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.rollover(now)
	symbol = strings.ToUpper(symbol)
	date := s.tradingDate(now)

	s.counters.Trades++
	s.lastTrade[symbol] = now
	switch side {
	case domain.SideBuy:
		if s.counters.LastBuyDate == nil {
			s.counters.LastBuyDate = make(map[string]string)
		}
		s.counters.LastBuyDate[symbol] = date
	case domain.SideSell:
		if s.counters.LastBuyDate[symbol] == date {
			s.pruneDayTradesLocked(now)
			s.counters.DayTrades = append(s.counters.DayTrades, now)
			log.Infof("🧾 当日往返 +1: %s (窗口内 %d 笔)", symbol, len(s.counters.DayTrades))
		}
	}
	if err := s.countersStore.Save(&s.counters); err != nil {
		log.Warnf("⚠️ 当日计数落盘失败: %v", err)
	}
}

// TradesToday 当日已成交笔数
func (s *Scheduler) TradesToday() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(s.now())
	return s.counters.Trades
}
