package execution

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/persistence"
)

const paperStore = "paper-account"

// QuoteSource 纸面撮合需要的最小行情能力
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (float64, error)
}

type paperState struct {
	Cash      float64                     `json:"cash"`
	Positions map[string]*domain.Position `json:"positions"`
}

// PaperBroker 纸面撮合：按当前报价即时成交，账户状态落盘可恢复
// 同时充当纸面模式下的持仓/账户数据源。
type PaperBroker struct {
	mu     sync.Mutex
	quotes QuoteSource
	store  persistence.Store
	state  paperState
}

// NewPaperBroker 创建纸面撮合器，首次运行以 initialCash 开户
func NewPaperBroker(quotes QuoteSource, svc persistence.Service, initialCash float64) *PaperBroker {
	p := &PaperBroker{
		quotes: quotes,
		store:  svc.NewStore(paperStore),
		state:  paperState{Cash: initialCash, Positions: make(map[string]*domain.Position)},
	}
	var saved paperState
	if err := p.store.Load(&saved); err == nil && saved.Positions != nil {
		p.state = saved
	} else if err != nil && err != persistence.ErrNotExists {
		log.Warnf("⚠️ 纸面账户加载失败，重新开户: %v", err)
	}
	return p
}

// SubmitMarketOrder 以当前报价即时成交
func (p *PaperBroker) SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side domain.Side) (*ports.OrderResult, error) {
	if qty <= 0 {
		return nil, errors.Errorf("无效的下单数量: %.4f", qty)
	}
	symbol = strings.ToUpper(symbol)
	price, err := p.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "纸面成交需要报价: %s", symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := price * qty
	pos := p.state.Positions[symbol]
	switch side {
	case domain.SideBuy:
		if cost > p.state.Cash {
			return nil, errors.Errorf("纸面资金不足: 需要 %.2f 可用 %.2f", cost, p.state.Cash)
		}
		p.state.Cash -= cost
		if pos == nil {
			p.state.Positions[symbol] = &domain.Position{
				Symbol: symbol, Quantity: qty, AvgEntryPrice: price, CurrentPrice: price,
			}
		} else {
			total := pos.AvgEntryPrice*pos.Quantity + cost
			pos.Quantity += qty
			pos.AvgEntryPrice = total / pos.Quantity
			pos.CurrentPrice = price
		}
	case domain.SideSell:
		if pos == nil || pos.Quantity < qty {
			return nil, errors.Errorf("纸面持仓不足: %s", symbol)
		}
		p.state.Cash += cost
		pos.Quantity -= qty
		if pos.Quantity <= 1e-9 {
			delete(p.state.Positions, symbol)
		} else {
			pos.CurrentPrice = price
		}
	default:
		return nil, errors.Errorf("无效的方向: %s", side)
	}

	if err := p.store.Save(&p.state); err != nil {
		log.Warnf("⚠️ 纸面账户落盘失败: %v", err)
	}
	id := uuid.NewString()
	log.Infof("🧾 纸面成交: %s %s x%.2f @%.2f id=%s", side, symbol, qty, price, id)
	return &ports.OrderResult{OrderID: id, Status: "filled"}, nil
}

// GetPositions 纸面持仓（按最新报价刷新现价）
func (p *PaperBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.state.Positions))
	for s := range p.state.Positions {
		symbols = append(symbols, s)
	}
	p.mu.Unlock()

	// 报价刷新放在锁外，避免持锁等网络
	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if price, err := p.quotes.GetQuote(ctx, s); err == nil {
			prices[s] = price
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Position, 0, len(p.state.Positions))
	for s, pos := range p.state.Positions {
		if price, ok := prices[s]; ok {
			pos.CurrentPrice = price
		}
		cp := *pos
		cp.UnrealizedPLPercent = cp.GainPercent()
		out = append(out, cp)
	}
	return out, nil
}

// GetAccount 纸面账户快照
func (p *PaperBroker) GetAccount(ctx context.Context) (*domain.Account, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.state.Cash
	for _, pos := range positions {
		equity += pos.CurrentPrice * pos.Quantity
	}
	return &domain.Account{BuyingPower: p.state.Cash, Equity: equity, Cash: p.state.Cash}, nil
}
