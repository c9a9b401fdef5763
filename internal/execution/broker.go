package execution

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
)

var log = logrus.WithField("module", "execution")

// BrokerClient 券商 REST 客户端（Alpaca 风格 API）
//
// 账户/持仓读取带有限重试；下单严格单次提交，失败交给下一个周期，
// 不做自动重试（避免重复成交）。
type BrokerClient struct {
	client *resty.Client
	dedupe *OrderDeduper
}

// NewBrokerClient 创建券商客户端
func NewBrokerClient(baseURL, apiKey, apiSecret string) *BrokerClient {
	if strings.HasSuffix(baseURL, "/") {
		baseURL = baseURL[:len(baseURL)-1]
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("APCA-API-KEY-ID", apiKey).
		SetHeader("APCA-API-SECRET-KEY", apiSecret).
		SetHeader("Accept", "application/json")
	return &BrokerClient{
		client: client,
		dedupe: NewOrderDeduper(5 * time.Second),
	}
}

type brokerAccount struct {
	BuyingPower string `json:"buying_power"`
	Equity      string `json:"equity"`
	Cash        string `json:"cash"`
}

type brokerPosition struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

type brokerOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// GetAccount 获取账户快照
func (b *BrokerClient) GetAccount(ctx context.Context) (*domain.Account, error) {
	var acct brokerAccount
	resp, err := b.client.R().SetContext(ctx).SetResult(&acct).Get("/v2/account")
	if err != nil {
		return nil, errors.Wrap(err, "获取账户失败")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("获取账户失败: %s %s", resp.Status(), resp.Body())
	}
	return &domain.Account{
		BuyingPower: parseFloat(acct.BuyingPower),
		Equity:      parseFloat(acct.Equity),
		Cash:        parseFloat(acct.Cash),
	}, nil
}

// GetPositions 获取当前持仓
func (b *BrokerClient) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var raw []brokerPosition
	resp, err := b.client.R().SetContext(ctx).SetResult(&raw).Get("/v2/positions")
	if err != nil {
		return nil, errors.Wrap(err, "获取持仓失败")
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("获取持仓失败: %s %s", resp.Status(), resp.Body())
	}
	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, domain.Position{
			Symbol:        strings.ToUpper(p.Symbol),
			Quantity:      parseFloat(p.Qty),
			AvgEntryPrice: parseFloat(p.AvgEntryPrice),
			CurrentPrice:  parseFloat(p.CurrentPrice),
			// 券商返回小数，内部统一用百分比
			UnrealizedPLPercent: parseFloat(p.UnrealizedPLPC) * 100,
		})
	}
	return positions, nil
}

// SubmitMarketOrder 提交市价单，单次尝试
func (b *BrokerClient) SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side domain.Side) (*ports.OrderResult, error) {
	if qty <= 0 {
		return nil, errors.Errorf("无效的下单数量: %.4f", qty)
	}
	// 同标的同方向短窗口去重，防止重复提交
	if err := b.dedupe.TryAcquire(symbol, side); err != nil {
		return nil, errors.Wrapf(err, "下单被去重拦截: %s %s", side, symbol)
	}
	body := map[string]string{
		"symbol":        strings.ToUpper(symbol),
		"qty":           strconv.FormatFloat(qty, 'f', -1, 64),
		"side":          string(side),
		"type":          "market",
		"time_in_force": "day",
	}
	var order brokerOrder
	resp, err := b.client.R().SetContext(ctx).SetBody(body).SetResult(&order).Post("/v2/orders")
	if err != nil {
		return nil, errors.Wrapf(err, "下单失败: %s %s", side, symbol)
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("下单失败: %s %s: %s %s", side, symbol, resp.Status(), resp.Body())
	}
	log.Infof("📮 订单已提交: %s %s x%.2f id=%s status=%s", side, symbol, qty, order.ID, order.Status)
	return &ports.OrderResult{OrderID: order.ID, Status: order.Status}, nil
}
