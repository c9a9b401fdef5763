package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/notify"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/persistence"
)

// ---- 测试替身 ----

type fakeData struct {
	quotes    map[string]float64
	bars      []domain.Bar
	barsErr   error
	positions []domain.Position
	account   domain.Account
}

func (f *fakeData) GetQuote(_ context.Context, symbol string) (float64, error) {
	if p, ok := f.quotes[symbol]; ok {
		return p, nil
	}
	return 0, context.DeadlineExceeded
}

func (f *fakeData) GetBars(context.Context, string, ports.Interval, time.Duration) ([]domain.Bar, error) {
	return f.bars, f.barsErr
}

func (f *fakeData) GetPositions(context.Context) ([]domain.Position, error) {
	out := make([]domain.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeData) GetAccount(context.Context) (*domain.Account, error) {
	acct := f.account
	return &acct, nil
}

type orderCall struct {
	symbol string
	qty    float64
	side   domain.Side
}

type fakeExec struct {
	calls []orderCall
	fail  bool
}

func (f *fakeExec) SubmitMarketOrder(_ context.Context, symbol string, qty float64, side domain.Side) (*ports.OrderResult, error) {
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	f.calls = append(f.calls, orderCall{symbol: symbol, qty: qty, side: side})
	return &ports.OrderResult{OrderID: "order-" + symbol, Status: "filled"}, nil
}

type fakeHours struct {
	open    bool
	minutes float64
}

func (h *fakeHours) IsOpen(time.Time) bool              { return h.open }
func (h *fakeHours) MinutesSinceOpen(time.Time) float64 { return h.minutes }

type fakeTickers struct {
	tickers map[string]*domain.Ticker
}

func (f *fakeTickers) BuildTicker(_ context.Context, symbol string) (*domain.Ticker, error) {
	if t, ok := f.tickers[symbol]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, context.DeadlineExceeded
}

// ---- 组装 ----

type harness struct {
	engine  *Engine
	cfg     *config.Manager
	data    *fakeData
	exec    *fakeExec
	hours   *fakeHours
	tickers *fakeTickers
	now     time.Time
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// 基准默认上涨，闸门走 daily_green 直接放行
func newHarness(t *testing.T, mutate func(*config.TradingConfig)) *harness {
	t.Helper()
	svc := persistence.NewJSONFileService(t.TempDir())
	cfg := config.NewManager(svc)
	if _, err := cfg.Update(func(c *config.TradingConfig) {
		c.Enabled = true
		if mutate != nil {
			mutate(c)
		}
	}); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		cfg:   cfg,
		data:  &fakeData{quotes: map[string]float64{}, account: domain.Account{BuyingPower: 8000, Equity: 8000, Cash: 8000}},
		exec:  &fakeExec{},
		hours: &fakeHours{open: true, minutes: 120},
		tickers: &fakeTickers{tickers: map[string]*domain.Ticker{
			"SPY": {Symbol: "SPY", Price: 500, ChangePercent: 1.0},
		}},
		now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}

	eng, err := New(cfg, h.data, h.exec, notify.NopNotifier{}, h.hours, h.tickers, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	eng.SetNowFunc(func() time.Time { return h.now })
	h.engine = eng
	return h
}

func f(v float64) *float64 { return &v }

// score ≈ 7.5：RSI 50 其余缺失
func strongTicker(symbol string, price float64) *domain.Ticker {
	return &domain.Ticker{Symbol: symbol, Price: price, RSI: f(50)}
}

// score ≈ 2.6：技术面弱 + 大涨后的均值回归压制
func weakTicker(symbol string, price float64) *domain.Ticker {
	return &domain.Ticker{Symbol: symbol, Price: price, RSI: f(99), ChangePercent: 10}
}

// score ≈ 5.5：不买不卖
func neutralTicker(symbol string, price float64) *domain.Ticker {
	return &domain.Ticker{Symbol: symbol, Price: price, RSI: f(90)}
}

func hasReason(res *CycleResult, substr string) bool {
	for _, r := range res.Reasoning {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

// ---- 用例 ----

func TestCycleDisabled(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.cfg.SetEnabled(false); err != nil {
		t.Fatal(err)
	}
	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasReason(res, "trading_disabled") {
		t.Errorf("应记录 trading_disabled: %v", res.Reasoning)
	}
	if len(h.exec.calls) != 0 {
		t.Error("关闭状态不应下单")
	}
}

func TestCycleMarketClosed(t *testing.T) {
	h := newHarness(t, nil)
	h.hours.open = false
	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !hasReason(res, "market_closed") {
		t.Errorf("应记录 market_closed: %v", res.Reasoning)
	}
}

func TestCycleSingleFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.cycleMu.Lock()
	defer h.engine.cycleMu.Unlock()

	res, err := h.engine.RunCycle(context.Background())
	if err != ErrEngineBusy {
		t.Fatalf("并发触发应返回 ErrEngineBusy: %v", err)
	}
	if !hasReason(res, "engine_busy") {
		t.Errorf("应记录 engine_busy: %v", res.Reasoning)
	}
}

func TestBuyQueuedThenExecuted(t *testing.T) {
	h := newHarness(t, func(c *config.TradingConfig) {
		c.Watchlist = []string{"AAPL"}
	})
	h.tickers.tickers["AAPL"] = strongTicker("AAPL", 100)
	h.data.quotes["AAPL"] = 100

	// 第一轮：买入只排队，不成交
	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Executed) != 0 {
		t.Fatalf("首轮不应成交: %+v", res.Executed)
	}
	if !hasReason(res, "买入排队") {
		t.Errorf("应记录排队: %v", res.Reasoning)
	}
	if got := len(h.engine.PendingBuys()); got != 1 {
		t.Fatalf("队列应有 1 条: %d", got)
	}

	// 过了延迟窗口再跑一轮：到期执行
	h.advance(6 * time.Minute)
	res, err = h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Executed) != 1 || res.Executed[0].Symbol != "AAPL" {
		t.Fatalf("到期买入应成交: %+v", res.Executed)
	}
	if len(h.exec.calls) != 1 || h.exec.calls[0].side != domain.SideBuy {
		t.Fatalf("应提交一笔买单: %+v", h.exec.calls)
	}
	// 每仓 = 8000/8 = 1000，价格 100 -> 10 股
	if h.exec.calls[0].qty != 10 {
		t.Errorf("股数错误: got %.0f want 10", h.exec.calls[0].qty)
	}
	if h.engine.tradeLog.LastBuy("AAPL") == nil {
		t.Error("交易日志应有买入记录")
	}
}

func TestSellExecuted(t *testing.T) {
	h := newHarness(t, nil)
	h.tickers.tickers["AAPL"] = weakTicker("AAPL", 98)
	h.data.positions = []domain.Position{
		{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 98},
	}

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Executed) != 1 || res.Executed[0].Action != domain.ActionSell {
		t.Fatalf("弱势持仓应卖出: %+v", res.Executed)
	}
	if len(h.exec.calls) != 1 || h.exec.calls[0].side != domain.SideSell || h.exec.calls[0].qty != 10 {
		t.Fatalf("卖单错误: %+v", h.exec.calls)
	}
}

func TestHoldPeriodProtectsRecentBuy(t *testing.T) {
	h := newHarness(t, nil)
	h.tickers.tickers["AAPL"] = weakTicker("AAPL", 98)
	h.data.positions = []domain.Position{
		{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 98},
	}
	// 昨天刚买的
	if err := h.engine.tradeLog.Append(domain.TradeRecord{
		ID: "t1", Symbol: "AAPL", Side: domain.SideBuy, Quantity: 10, Price: 100,
		Status: domain.TradeStatusExecuted, Mode: domain.TradeModePaper,
		Timestamp: h.now.Add(-24 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Executed) != 0 {
		t.Fatalf("持有期内不应卖出: %+v", res.Executed)
	}
	if len(res.Protected) == 0 || !strings.Contains(res.Protected[0].Reason, "hold_period") {
		t.Errorf("应记录持有期保护: %+v", res.Protected)
	}
}

func TestMomentumProtectionVetoesBuys(t *testing.T) {
	h := newHarness(t, func(c *config.TradingConfig) {
		c.Watchlist = []string{"MSFT"}
	})
	h.tickers.tickers["MSFT"] = strongTicker("MSFT", 400)
	h.tickers.tickers["NVDA"] = neutralTicker("NVDA", 108)
	h.data.positions = []domain.Position{
		{Symbol: "NVDA", Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 108, UnrealizedPLPercent: 8},
	}

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(h.engine.PendingBuys()); got != 0 {
		t.Errorf("动量保护期不应排队新买入: %d", got)
	}
	found := false
	for _, p := range res.Protected {
		if strings.Contains(p.Reason, "momentum_protection_veto") {
			found = true
		}
	}
	if !found {
		t.Errorf("应记录动量保护否决: %+v", res.Protected)
	}
}

func TestTrailingStopTriggerSells(t *testing.T) {
	h := newHarness(t, func(c *config.TradingConfig) {
		c.EnableTrailingStops = true
	})
	h.tickers.tickers["AAPL"] = neutralTicker("AAPL", 110)
	h.data.positions = []domain.Position{
		{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 110},
	}

	// 第一轮建立止损（浮盈 10% -> 档位 4% -> 锁定 6% -> stop 106）
	if _, err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.exec.calls) != 0 {
		t.Fatalf("首轮不应有成交: %+v", h.exec.calls)
	}
	stop := h.engine.StopsSnapshot()["AAPL"]
	if diff := stop.StopPrice - 106.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("止损价应为 106: %.2f", stop.StopPrice)
	}

	// 价格击穿止损线
	h.advance(time.Hour)
	h.data.positions[0].CurrentPrice = 104
	h.tickers.tickers["AAPL"] = neutralTicker("AAPL", 104)

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Executed) != 1 || !strings.Contains(res.Executed[0].Reason, "trailing_stop_triggered") {
		t.Fatalf("止损触发应卖出: %+v", res.Executed)
	}
	if _, ok := h.engine.StopsSnapshot()["AAPL"]; ok {
		t.Error("卖出后止损应被清除")
	}
}

func TestGateBlockedAllowsOnlyDefensiveBuys(t *testing.T) {
	h := newHarness(t, func(c *config.TradingConfig) {
		c.Watchlist = []string{"AAPL", "SH"}
	})
	// 基准当日下跌 + 盘中持续走弱：严格闸门拦截
	h.tickers.tickers["SPY"] = &domain.Ticker{Symbol: "SPY", Price: 480, ChangePercent: -1.0}
	bars := make([]domain.Bar, 0, 60)
	for i := 0; i < 60; i++ {
		price := 485 - float64(i)*0.05
		bars = append(bars, domain.Bar{
			Time:  h.now.Add(-time.Duration(60-i) * time.Minute),
			Open:  price, High: price + 0.02, Low: price - 0.02, Close: price,
			Volume: 1000,
		})
	}
	h.data.bars = bars
	h.tickers.tickers["AAPL"] = strongTicker("AAPL", 100)
	h.tickers.tickers["SH"] = strongTicker("SH", 14)

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Gate.Allow {
		t.Fatalf("持续走弱闸门应拦截: %+v", res.Gate)
	}

	blocked := false
	for _, s := range res.Skipped {
		if s.Symbol == "AAPL" && s.Reason == "market_gate_blocked" {
			blocked = true
		}
	}
	if !blocked {
		t.Errorf("普通标的应被闸门拦截: %+v", res.Skipped)
	}

	pending := h.engine.PendingBuys()
	if len(pending) != 1 || pending[0].Symbol != "SH" {
		t.Errorf("防御性标的应可排队: %+v", pending)
	}
}

func TestMaturedBuyCancelledOnMarketFlip(t *testing.T) {
	h := newHarness(t, func(c *config.TradingConfig) {
		c.Watchlist = []string{"AAPL", "SH"}
	})
	h.tickers.tickers["AAPL"] = strongTicker("AAPL", 100)
	h.tickers.tickers["SH"] = strongTicker("SH", 14)
	h.data.quotes["AAPL"] = 100
	h.data.quotes["SH"] = 14

	// 第一轮：基准上涨，两只都排队
	if _, err := h.engine.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(h.engine.PendingBuys()); got != 2 {
		t.Fatalf("首轮应排队 2 条: %d", got)
	}

	// 延迟窗口内市场转向：基准转跌 + 盘中持续走弱
	h.advance(6 * time.Minute)
	h.tickers.tickers["SPY"] = &domain.Ticker{Symbol: "SPY", Price: 480, ChangePercent: -2.0}
	bars := make([]domain.Bar, 0, 60)
	for i := 0; i < 60; i++ {
		price := 485 - float64(i)*0.05
		bars = append(bars, domain.Bar{
			Time:  h.now.Add(-time.Duration(60-i) * time.Minute),
			Open:  price, High: price + 0.02, Low: price - 0.02, Close: price,
			Volume: 1000,
		})
	}
	h.data.bars = bars

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Gate.Allow {
		t.Fatalf("转向后闸门应拦截: %+v", res.Gate)
	}

	// 普通买入到期后撤销，防御性标的照常执行
	cancelled := false
	for _, s := range res.Skipped {
		if s.Symbol == "AAPL" && s.Reason == "market_flip_cancelled" {
			cancelled = true
		}
	}
	if !cancelled {
		t.Errorf("AAPL 到期买入应被撤销: %+v", res.Skipped)
	}
	if len(h.exec.calls) != 1 || h.exec.calls[0].symbol != "SH" || h.exec.calls[0].side != domain.SideBuy {
		t.Fatalf("应只成交防御性买单: %+v", h.exec.calls)
	}
}

func TestRepeatedCyclesNoDuplicateOrders(t *testing.T) {
	h := newHarness(t, func(c *config.TradingConfig) {
		c.Watchlist = []string{"AAPL"}
	})
	h.tickers.tickers["AAPL"] = strongTicker("AAPL", 100)
	h.data.quotes["AAPL"] = 100

	// 连续两轮：排队不重复，也不提前成交
	for i := 0; i < 2; i++ {
		if _, err := h.engine.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(h.engine.PendingBuys()); got != 1 {
		t.Fatalf("重复排队应被拒绝: %d", got)
	}
	if len(h.exec.calls) != 0 {
		t.Fatalf("延迟未满不应成交: %+v", h.exec.calls)
	}

	// 到期成交一次后，紧接着的一轮被冷却拦住
	h.advance(6 * time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := h.engine.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(h.exec.calls) != 1 {
		t.Fatalf("应只成交一笔: %+v", h.exec.calls)
	}
	executed := 0
	for _, r := range h.engine.RecentTrades(10) {
		if r.Symbol == "AAPL" && r.Status == domain.TradeStatusExecuted {
			executed++
		}
	}
	if executed != 1 {
		t.Errorf("交易日志不应有重复成交: got %d", executed)
	}
}

func TestOrderFailureRecordedAndSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.exec.fail = true
	h.tickers.tickers["AAPL"] = weakTicker("AAPL", 98)
	h.data.positions = []domain.Position{
		{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100, CurrentPrice: 98},
	}

	res, err := h.engine.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Executed) != 0 {
		t.Fatalf("下单失败不应计为成交: %+v", res.Executed)
	}
	found := false
	for _, s := range res.Skipped {
		if strings.Contains(s.Reason, "order_failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("应记录 order_failed: %+v", res.Skipped)
	}
	recent := h.engine.RecentTrades(1)
	if len(recent) != 1 || recent[0].Status != domain.TradeStatusFailed {
		t.Errorf("失败订单应落日志: %+v", recent)
	}
}
