package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/stockbot/gostock/internal/domain"
)

var log = logrus.WithField("module", "history")

// SymbolStats 单标的成交聚合
type SymbolStats struct {
	Symbol    string  `json:"symbol"`
	Buys      int     `json:"buys"`
	Sells     int     `json:"sells"`
	Notional  float64 `json:"notional"`
	LastTrade string  `json:"lastTrade"`
}

// Archive 成交历史档案
//
// JSON 交易日志是引擎自身的事实来源（反频繁交易重建用，带上限裁剪）；
// 这里的 sqlite 档案保留全量历史，供管理面查询和聚合。
// 档案写入失败只记日志，不阻断交易链路。
type Archive struct {
	db *sql.DB
}

// Open 打开（或创建）档案库
func Open(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
CREATE TABLE IF NOT EXISTS trades (
	id       TEXT PRIMARY KEY,
	symbol   TEXT NOT NULL,
	side     TEXT NOT NULL,
	quantity REAL NOT NULL,
	price    REAL NOT NULL,
	reason   TEXT NOT NULL DEFAULT '',
	status   TEXT NOT NULL,
	mode     TEXT NOT NULL,
	ts       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
`)
	if err != nil {
		return fmt.Errorf("migrate trades: %w", err)
	}
	return nil
}

// Close 关闭档案库
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Insert 归档一笔成交（幂等：同 ID 重复插入被忽略）
func (a *Archive) Insert(r *domain.TradeRecord) error {
	if a == nil || r == nil {
		return nil
	}
	_, err := a.db.Exec(`INSERT OR IGNORE INTO trades
		(id, symbol, side, quantity, price, reason, status, mode, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Symbol, string(r.Side), r.Quantity, r.Price,
		r.Reason, string(r.Status), string(r.Mode), r.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archive insert: %w", err)
	}
	return nil
}

// Recent 最近 limit 笔成交，新的在前
func (a *Archive) Recent(limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(`SELECT id, symbol, side, quantity, price, reason, status, mode, ts
		FROM trades ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var side, status, mode, ts string
		if err := rows.Scan(&r.ID, &r.Symbol, &side, &r.Quantity, &r.Price, &r.Reason, &status, &mode, &ts); err != nil {
			return nil, fmt.Errorf("archive scan: %w", err)
		}
		r.Side = domain.Side(side)
		r.Status = domain.TradeStatus(status)
		r.Mode = domain.TradeMode(mode)
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.Timestamp = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatsBySymbol 按标的聚合成交
func (a *Archive) StatsBySymbol() ([]SymbolStats, error) {
	rows, err := a.db.Query(`SELECT symbol,
		SUM(CASE WHEN side = 'buy' THEN 1 ELSE 0 END),
		SUM(CASE WHEN side = 'sell' THEN 1 ELSE 0 END),
		SUM(quantity * price),
		MAX(ts)
		FROM trades GROUP BY symbol ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("archive stats: %w", err)
	}
	defer rows.Close()

	var out []SymbolStats
	for rows.Next() {
		var s SymbolStats
		if err := rows.Scan(&s.Symbol, &s.Buys, &s.Sells, &s.Notional, &s.LastTrade); err != nil {
			return nil, fmt.Errorf("archive stats scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
