package marketdata

import (
	"context"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
)

// AccountSource 持仓/账户数据源（券商或纸面撮合器）
type AccountSource interface {
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetAccount(ctx context.Context) (*domain.Account, error)
}

// Provider 组合行情端口：报价/K线走雅虎，持仓/账户走券商
type Provider struct {
	*YahooSource
	accounts AccountSource
}

var _ ports.MarketData = (*Provider)(nil)

// NewProvider 组装完整的行情端口
func NewProvider(yahoo *YahooSource, accounts AccountSource) *Provider {
	return &Provider{YahooSource: yahoo, accounts: accounts}
}

func (p *Provider) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return p.accounts.GetPositions(ctx)
}

func (p *Provider) GetAccount(ctx context.Context) (*domain.Account, error) {
	return p.accounts.GetAccount(ctx)
}
