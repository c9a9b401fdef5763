package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stockbot/gostock/internal/domain"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("打开档案库失败: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func record(id, symbol string, side domain.Side, qty, price float64, at time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID: id, Symbol: symbol, Side: side, Quantity: qty, Price: price,
		Reason: "test", Status: domain.TradeStatusExecuted, Mode: domain.TradeModePaper,
		Timestamp: at,
	}
}

func TestArchiveInsertAndRecent(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	for i, sym := range []string{"AAPL", "MSFT", "NVDA"} {
		r := record(sym+"-1", sym, domain.SideBuy, 10, 100, base.Add(time.Duration(i)*time.Minute))
		if err := a.Insert(r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := a.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("limit=2 应返回 2 条: got %d", len(got))
	}
	if got[0].Symbol != "NVDA" {
		t.Errorf("应按时间倒序: got %s", got[0].Symbol)
	}
	if got[0].Side != domain.SideBuy || got[0].Mode != domain.TradeModePaper {
		t.Errorf("字段未完整回读: %+v", got[0])
	}
}

func TestArchiveInsertIdempotent(t *testing.T) {
	a := openTestArchive(t)
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	r := record("dup-1", "AAPL", domain.SideBuy, 10, 100, at)
	if err := a.Insert(r); err != nil {
		t.Fatal(err)
	}
	if err := a.Insert(r); err != nil {
		t.Fatal(err)
	}
	got, err := a.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("同 ID 重复插入应被忽略: got %d 条", len(got))
	}
}

func TestArchiveStatsBySymbol(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	_ = a.Insert(record("a1", "AAPL", domain.SideBuy, 10, 100, base))
	_ = a.Insert(record("a2", "AAPL", domain.SideSell, 10, 110, base.Add(time.Hour)))
	_ = a.Insert(record("m1", "MSFT", domain.SideBuy, 5, 400, base))

	stats, err := a.StatsBySymbol()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("应有 2 个标的: %+v", stats)
	}
	aapl := stats[0]
	if aapl.Symbol != "AAPL" || aapl.Buys != 1 || aapl.Sells != 1 {
		t.Errorf("AAPL 聚合错误: %+v", aapl)
	}
	if aapl.Notional != 10*100+10*110 {
		t.Errorf("AAPL 成交额错误: %.2f", aapl.Notional)
	}
}
