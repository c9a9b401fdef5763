package engine

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/antichurn"
	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/gates"
	"github.com/stockbot/gostock/internal/history"
	"github.com/stockbot/gostock/internal/metrics"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/internal/scheduler"
	"github.com/stockbot/gostock/internal/scoring"
	"github.com/stockbot/gostock/internal/signal"
	"github.com/stockbot/gostock/internal/stops"
	"github.com/stockbot/gostock/pkg/persistence"
)

var log = logrus.WithField("module", "engine")

// ErrEngineBusy 上一轮评估尚未结束时再次触发
var ErrEngineBusy = errors.New("engine busy: previous cycle still running")

// TickerSource 标的快照来源
type TickerSource interface {
	BuildTicker(ctx context.Context, symbol string) (*domain.Ticker, error)
}

// gateConfig 把配置管理器适配成方向闸门需要的只读视图
type gateConfig struct{ m *config.Manager }

func (g gateConfig) GetBenchmarkSymbol() string { return g.m.Get().BenchmarkSymbol }
func (g gateConfig) GetLenientMode() bool {
	return g.m.Get().MarketGateMode == config.GateModeLenient
}

// churnConfig 反频繁交易守卫的配置视图
type churnConfig struct{ m *config.Manager }

func (c churnConfig) GetMinHoldDays() int         { return c.m.Get().MinHoldDays }
func (c churnConfig) GetMaxRotationsPerWeek() int { return c.m.Get().MaxRotationsPerWeek }

// Engine 交易编排器：每轮按固定管线驱动所有子模块
//
// 单飞约束：RunCycle 与手动交易共用一把锁，并发触发直接返回
// ErrEngineBusy，不排队。引擎自有状态（交易日志、当日计数、
// 延迟买入队列、止损表）全部同步落盘。
type Engine struct {
	cycleMu sync.Mutex

	cfg      *config.Manager
	data     ports.MarketData
	exec     ports.OrderExecutor
	notifier ports.Notifier
	hours    ports.MarketHours

	gate     *gates.Gate
	scorer   *scoring.Scorer
	guard    *antichurn.Guard
	stops    *stops.Engine
	sched    *scheduler.Scheduler
	tickers  TickerSource
	tradeLog *TradeLog
	archive  *history.Archive // 可为 nil

	gateMu       sync.Mutex
	lastGateSnap *GateSnapshot

	now func() time.Time
}

// lastGate 最近一轮的闸门结果副本
func (e *Engine) lastGate() *GateSnapshot {
	e.gateMu.Lock()
	defer e.gateMu.Unlock()
	if e.lastGateSnap == nil {
		return nil
	}
	snap := *e.lastGateSnap
	return &snap
}

func (e *Engine) recordGate(snap GateSnapshot) {
	e.gateMu.Lock()
	e.lastGateSnap = &snap
	e.gateMu.Unlock()
}

// New 组装引擎
func New(
	cfg *config.Manager,
	data ports.MarketData,
	exec ports.OrderExecutor,
	notifier ports.Notifier,
	hours ports.MarketHours,
	tickers TickerSource,
	svc persistence.Service,
	archive *history.Archive,
) (*Engine, error) {
	stopEngine, err := stops.NewEngine(svc)
	if err != nil {
		return nil, errors.Wrap(err, "初始化止损引擎失败")
	}
	tradeLog := NewTradeLog(svc)
	e := &Engine{
		cfg:      cfg,
		data:     data,
		exec:     exec,
		notifier: notifier,
		hours:    hours,
		gate:     gates.New(gateConfig{m: cfg}, data, hours),
		scorer:   scoring.NewScorer(nil),
		guard:    antichurn.New(churnConfig{m: cfg}, tradeLog),
		stops:    stopEngine,
		sched:    scheduler.New(cfg, hours, svc),
		tickers:  tickers,
		tradeLog: tradeLog,
		archive:  archive,
		now:      time.Now,
	}
	return e, nil
}

// SetNowFunc 注入虚拟时钟（测试用），向下透传到全部子模块
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
	e.gate.SetNowFunc(now)
	e.scorer.SetNowFunc(now)
	e.guard.SetNowFunc(now)
	e.stops.SetNowFunc(now)
	e.sched.SetNowFunc(now)
}

type scoredTicker struct {
	ticker *domain.Ticker
	score  float64
}

// RunCycle 执行一轮评估
//
// 管线：开关/时段检查 -> 到期延迟买入 -> 方向闸门 -> 打分排序 ->
// 止损刷新与触发 -> 漂移/滞涨 -> 常规卖出 -> 买入评估。
// 任何单步失败只影响该步，剩余管线继续（部分完成优于整体失败）。
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !e.cycleMu.TryLock() {
		r := &CycleResult{StartedAt: e.now(), FinishedAt: e.now()}
		r.addReason("⛔ engine_busy: 上一轮仍在进行")
		return r, ErrEngineBusy
	}
	defer e.cycleMu.Unlock()
	metrics.CycleRuns.Add(1)

	res := &CycleResult{StartedAt: e.now()}
	defer func() {
		res.FinishedAt = e.now()
		res.TradesToday = e.sched.TradesToday()
	}()

	cfg := e.cfg.Get()
	if !cfg.Enabled {
		res.addReason("⏸️ trading_disabled")
		return res, nil
	}
	if !e.hours.IsOpen(e.now()) {
		res.addReason("🌙 market_closed")
		return res, nil
	}

	evaluator := signal.NewEvaluator(&cfg)

	// 1. 市场方向（每轮只判一次，到期买入执行前必须已知）
	marketPositive := e.resolveGate(ctx, &cfg, res)

	// 2. 到期的延迟买入：执行时重验方向，转负则撤销而不是执行
	e.processMaturedBuys(ctx, &cfg, res, marketPositive)
	if !marketPositive {
		if cancelled := e.sched.CancelOnMarketFlip(); len(cancelled) > 0 {
			res.addReason("🔴 市场转向，撤销延迟买入: %s", strings.Join(cancelled, ","))
		}
	}

	// 3. 持仓与账户
	positions, err := e.data.GetPositions(ctx)
	if err != nil {
		res.addReason("⚠️ 持仓获取失败，跳过持仓相关步骤: %v", err)
		positions = nil
	}
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[strings.ToUpper(p.Symbol)] = true
	}

	// 4. 打分并排序
	ranked, bySymbol := e.scoreUniverse(ctx, &cfg, positions, res)

	// 5. 移动止损：先刷新棘轮，再查触发
	sold := make(map[string]bool)
	if cfg.EnableTrailingStops {
		if err := e.stops.UpdateStops(positions); err != nil {
			res.addReason("⚠️ 止损刷新失败: %v", err)
		}
		for _, trig := range e.stops.CheckTriggers(positions) {
			pos := findPosition(positions, trig.Symbol)
			if pos == nil {
				continue
			}
			metrics.StopTriggers.Add(1)
			if e.sellPosition(ctx, &cfg, res, pos, domain.ActionSell, trig.Reason, false, true) {
				sold[strings.ToUpper(trig.Symbol)] = true
			}
		}
	}

	// 6. 漂移/滞涨检测（失败按"无信号"继续）
	e.runDetectors(ctx, &cfg, res, positions, bySymbol, sold)

	// 7. 常规卖出信号
	for i := range positions {
		pos := &positions[i]
		symbol := strings.ToUpper(pos.Symbol)
		if sold[symbol] {
			continue
		}
		st, ok := bySymbol[symbol]
		if !ok {
			res.addReason("⚠️ %s 无快照，跳过卖出评估", symbol)
			continue
		}
		ev := evaluator.EvaluateSell(st.ticker, st.score, pos)
		reason := strings.Join(ev.Reasons, "; ")
		if ev.Action.IsSell() {
			extreme := ev.Action == domain.ActionExtremeSell
			if e.sellPosition(ctx, &cfg, res, pos, ev.Action, reason, extreme, false) {
				sold[symbol] = true
			}
		} else if strings.Contains(reason, "momentum_protection_hold") {
			res.protected(TradeDecision{Symbol: symbol, Score: st.score, Reason: reason})
		}
	}

	// 8. 买入评估
	e.evaluateBuys(ctx, &cfg, res, evaluator, ranked, positions, held, marketPositive)

	res.Gate.Allow = marketPositive
	log.Infof("📊 本轮完成: executed=%d skipped=%d protected=%d trades_today=%d",
		len(res.Executed), len(res.Skipped), len(res.Protected), e.sched.TradesToday())
	return res, nil
}

// resolveGate 取基准涨跌幅并查询方向闸门，基准不可得时 fail-open
func (e *Engine) resolveGate(ctx context.Context, cfg *config.TradingConfig, res *CycleResult) bool {
	bench, err := e.tickers.BuildTicker(ctx, cfg.BenchmarkSymbol)
	if err != nil {
		res.Gate = GateSnapshot{Allow: true, Reason: "benchmark_unavailable(fail_open)"}
		e.recordGate(res.Gate)
		res.addReason("⚠️ 基准 %s 不可得，方向闸门放行: %v", cfg.BenchmarkSymbol, err)
		return true
	}
	d := e.gate.Decide(ctx, bench.ChangePercent)
	res.Gate = GateSnapshot{Allow: d.Allow, Reason: d.Reason, DailyChange: bench.ChangePercent}
	e.recordGate(res.Gate)
	res.addReason("🧭 市场方向: allow=%v daily=%.2f%% (%s)", d.Allow, bench.ChangePercent, d.Reason)
	return d.Allow
}

// scoreUniverse 给关注列表与持仓标的打分，按分数降序
func (e *Engine) scoreUniverse(ctx context.Context, cfg *config.TradingConfig, positions []domain.Position, res *CycleResult) ([]scoredTicker, map[string]scoredTicker) {
	seen := make(map[string]bool)
	var symbols []string
	for _, s := range cfg.Watchlist {
		s = strings.ToUpper(s)
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for _, p := range positions {
		s := strings.ToUpper(p.Symbol)
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}

	bySymbol := make(map[string]scoredTicker, len(symbols))
	ranked := make([]scoredTicker, 0, len(symbols))
	for _, symbol := range symbols {
		t, err := e.tickers.BuildTicker(ctx, symbol)
		if err != nil {
			res.addReason("⚠️ %s 快照获取失败: %v", symbol, err)
			continue
		}
		score, bd := e.scorer.Score(t)
		log.Debugf("🎯 %s score=%.2f %s", symbol, score, bd.String())
		st := scoredTicker{ticker: t, score: score}
		bySymbol[symbol] = st
		ranked = append(ranked, st)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked, bySymbol
}

// runDetectors 漂移与滞涨卖出触发，均受反频繁交易守卫约束
func (e *Engine) runDetectors(ctx context.Context, cfg *config.TradingConfig, res *CycleResult, positions []domain.Position, bySymbol map[string]scoredTicker, sold map[string]bool) {
	for i := range positions {
		pos := &positions[i]
		symbol := strings.ToUpper(pos.Symbol)
		if sold[symbol] {
			continue
		}

		if cfg.EnableDriftCheck {
			if trig, avg, err := e.checkDrift(ctx, symbol, cfg); err != nil {
				res.addReason("⚠️ drift 检查无信号: %v", err)
			} else if trig {
				reason := "momentum_drift(weighted_avg=" + formatPct(avg) + ")"
				if e.sellPosition(ctx, cfg, res, pos, domain.ActionSell, reason, false, false) {
					sold[symbol] = true
					continue
				}
			}
		}

		if cfg.EnableStagnationCheck {
			score := 0.0
			if st, ok := bySymbol[symbol]; ok {
				score = st.score
			}
			if trig, err := e.checkStagnation(ctx, symbol, score, cfg); err != nil {
				res.addReason("⚠️ stagnation 检查无信号: %v", err)
			} else if trig {
				reason := "stagnation(range<" + formatPct(cfg.StagnationRangePercent) + ")"
				if e.sellPosition(ctx, cfg, res, pos, domain.ActionSell, reason, false, false) {
					sold[symbol] = true
				}
			}
		}
	}
}

// evaluateBuys 评估排名前列的未持仓标的
func (e *Engine) evaluateBuys(ctx context.Context, cfg *config.TradingConfig, res *CycleResult, evaluator *signal.Evaluator, ranked []scoredTicker, positions []domain.Position, held map[string]bool, marketPositive bool) {
	rotation := e.guard.CheckRotationFrequency()
	if !rotation.AllowBuys {
		res.addReason("🚫 %s", rotation.Reason)
		return
	}

	openCount := len(positions)
	pendingCount := len(e.sched.PendingBuys())
	candidates := 0
	for _, st := range ranked {
		if candidates >= cfg.TopBuyCandidates {
			break
		}
		symbol := strings.ToUpper(st.ticker.Symbol)
		if held[symbol] {
			continue
		}
		candidates++

		// 闸门关闭时只放行防御性标的
		if !marketPositive && !cfg.IsDefensive(symbol) {
			res.skipped(TradeDecision{Symbol: symbol, Action: domain.ActionBuy, Score: st.score,
				Reason: "market_gate_blocked"})
			continue
		}
		if openCount+pendingCount >= cfg.MaxPositions {
			res.skipped(TradeDecision{Symbol: symbol, Action: domain.ActionBuy, Score: st.score,
				Reason: "max_positions_reached"})
			continue
		}

		ev := evaluator.EvaluateBuy(st.ticker, st.score, signal.BuyContext{
			MarketPositive: marketPositive,
			OpenPositions:  positions,
		})
		if !ev.Action.IsBuy() {
			if len(ev.Reasons) > 0 {
				reason := strings.Join(ev.Reasons, "; ")
				if strings.Contains(reason, "momentum_protection") {
					res.protected(TradeDecision{Symbol: symbol, Score: st.score, Reason: reason})
				}
			}
			continue
		}

		reason := string(ev.Action) + ": " + strings.Join(ev.Reasons, "; ")
		if d := e.sched.CanTrade(symbol, domain.SideBuy); !d.Allow {
			res.skipped(TradeDecision{Symbol: symbol, Action: ev.Action, Score: st.score, Reason: d.Reason})
			continue
		}
		if err := e.sched.QueueBuy(symbol, st.ticker.Price, reason, marketPositive); err != nil {
			res.skipped(TradeDecision{Symbol: symbol, Action: ev.Action, Score: st.score, Reason: err.Error()})
			continue
		}
		pendingCount++
		res.addReason("⏱️ %s 买入排队 (score=%.2f, %dm 后执行): %s",
			symbol, st.score, cfg.BuyDelayMinutes, reason)
	}
}

// processMaturedBuys 执行已过延迟窗口的买入，执行前重新过全部检查
func (e *Engine) processMaturedBuys(ctx context.Context, cfg *config.TradingConfig, res *CycleResult, marketPositive bool) {
	matured := e.sched.MaturedBuys()
	if len(matured) == 0 {
		return
	}
	for _, pb := range matured {
		// 延迟窗口内市场可能转向：普通买入重验方向，防御性标的不受限
		if !marketPositive && !cfg.IsDefensive(pb.Symbol) {
			reason := "market_gate_blocked"
			if pb.MarketPositive {
				reason = "market_flip_cancelled"
			}
			res.skipped(TradeDecision{Symbol: pb.Symbol, Action: domain.ActionBuy, Reason: reason})
			res.addReason("🔴 到期买入撤销: %s (%s)", pb.Symbol, reason)
			continue
		}
		price, err := e.data.GetQuote(ctx, pb.Symbol)
		if err != nil {
			res.skipped(TradeDecision{Symbol: pb.Symbol, Action: domain.ActionBuy,
				Reason: "quote_unavailable: " + err.Error()})
			continue
		}
		qty := e.buyQuantity(ctx, cfg, price)
		if qty <= 0 {
			res.skipped(TradeDecision{Symbol: pb.Symbol, Action: domain.ActionBuy,
				Reason: "insufficient_buying_power"})
			continue
		}
		e.executeTrade(ctx, cfg, res, tradeIntent{
			symbol: pb.Symbol, side: domain.SideBuy, action: domain.ActionBuy,
			qty: qty, price: price, reason: pb.Reason,
		})
	}
}

// buyQuantity 按账户规模计算整数股数：每仓 = 总权益/最大仓位数，受购买力约束
func (e *Engine) buyQuantity(ctx context.Context, cfg *config.TradingConfig, price float64) float64 {
	if price <= 0 {
		return 0
	}
	acct, err := e.data.GetAccount(ctx)
	if err != nil {
		log.Warnf("⚠️ 账户获取失败: %v", err)
		return 0
	}
	alloc := acct.Equity / float64(cfg.MaxPositions)
	if alloc > acct.BuyingPower {
		alloc = acct.BuyingPower
	}
	return math.Floor(alloc / price)
}

// sellPosition 走完整卖出链路：反频繁交易守卫 -> 调度检查 -> 下单
func (e *Engine) sellPosition(ctx context.Context, cfg *config.TradingConfig, res *CycleResult, pos *domain.Position, action domain.Action, reason string, isExtremeSell, isStopTrigger bool) bool {
	symbol := strings.ToUpper(pos.Symbol)
	hold := e.guard.CheckHoldPeriod(symbol, isExtremeSell, isStopTrigger)
	if !hold.Allow {
		res.protected(TradeDecision{Symbol: symbol, Action: action, Reason: hold.Reason})
		return false
	}
	if pos.Quantity <= 0 {
		res.skipped(TradeDecision{Symbol: symbol, Action: action, Reason: "invalid_quantity"})
		return false
	}
	return e.executeTrade(ctx, cfg, res, tradeIntent{
		symbol: symbol, side: domain.SideSell, action: action,
		qty: pos.Quantity, price: pos.CurrentPrice, reason: reason,
	})
}

type tradeIntent struct {
	symbol string
	side   domain.Side
	action domain.Action
	qty    float64
	price  float64
	reason string
}

// executeTrade 单次提交订单并记录结果，失败不重试
func (e *Engine) executeTrade(ctx context.Context, cfg *config.TradingConfig, res *CycleResult, in tradeIntent) bool {
	if d := e.sched.CanTrade(in.symbol, in.side); !d.Allow {
		res.skipped(TradeDecision{Symbol: in.symbol, Action: in.action, Reason: d.Reason})
		return false
	}
	if in.price <= 0 || in.qty <= 0 || in.qty != math.Trunc(in.qty) {
		res.skipped(TradeDecision{Symbol: in.symbol, Action: in.action, Reason: "validation_failed"})
		return false
	}

	record := domain.TradeRecord{
		ID:        uuid.NewString(),
		Symbol:    in.symbol,
		Side:      in.side,
		Quantity:  in.qty,
		Price:     in.price,
		Reason:    in.reason,
		Mode:      cfg.Mode,
		Timestamp: e.now(),
	}

	order, err := e.exec.SubmitMarketOrder(ctx, in.symbol, in.qty, in.side)
	if err != nil {
		metrics.TradesFailed.Add(1)
		record.Status = domain.TradeStatusFailed
		if lerr := e.tradeLog.Append(record); lerr != nil {
			log.Errorf("交易日志写入失败: %v", lerr)
		}
		res.skipped(TradeDecision{Symbol: in.symbol, Action: in.action,
			Reason: "order_failed: " + err.Error()})
		return false
	}

	metrics.TradesExecuted.Add(1)
	record.Status = domain.TradeStatusExecuted
	if order != nil && order.OrderID != "" {
		record.ID = order.OrderID
	}
	if err := e.tradeLog.Append(record); err != nil {
		log.Errorf("交易日志写入失败: %v", err)
	}
	if e.archive != nil {
		if err := e.archive.Insert(&record); err != nil {
			log.Warnf("⚠️ 成交归档失败: %v", err)
		}
	}
	e.sched.RecordTrade(in.symbol, in.side)
	if in.side == domain.SideSell {
		if err := e.stops.Remove(in.symbol); err != nil {
			log.Warnf("⚠️ 止损清除失败: %s %v", in.symbol, err)
		}
	}
	e.notifier.NotifyTrade(ctx, &record)

	res.executed(TradeDecision{Symbol: in.symbol, Action: in.action,
		Reason: in.reason, OrderID: record.ID})
	return true
}

// RefreshStops 盘中小时级/盘前的止损刷新入口（由宿主循环调用）
func (e *Engine) RefreshStops(ctx context.Context) error {
	if !e.cfg.Get().EnableTrailingStops {
		return nil
	}
	positions, err := e.data.GetPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "止损刷新取持仓失败")
	}
	return e.stops.UpdateStops(positions)
}

func findPosition(positions []domain.Position, symbol string) *domain.Position {
	for i := range positions {
		if strings.EqualFold(positions[i].Symbol, symbol) {
			return &positions[i]
		}
	}
	return nil
}

func formatPct(v float64) string {
	return strings.TrimRight(strings.TrimRight(
		strconv.FormatFloat(v, 'f', 2, 64), "0"), ".") + "%"
}
