package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/ports"
)

var log = logrus.WithField("module", "notify")

// TelegramNotifier 交易通知（telegram）
// 尽力而为：任何失败只记日志并返回 false，绝不影响交易链路。
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ ports.Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier 创建通知器；token 为空或初始化失败时返回 nil（上层用 Nop 兜底）
func NewTelegramNotifier(token string, chatID int64) *TelegramNotifier {
	if token == "" || chatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warnf("⚠️ telegram 初始化失败，通知降级为关闭: %v", err)
		return nil
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// NotifyTrade 推送一笔成交
func (n *TelegramNotifier) NotifyTrade(_ context.Context, record *domain.TradeRecord) bool {
	if n == nil || record == nil {
		return false
	}
	emoji := "🟢"
	if record.Side == domain.SideSell {
		emoji = "🔴"
	}
	text := fmt.Sprintf("%s %s %s x%.2f @%.2f [%s/%s]\n%s",
		emoji, record.Side, record.Symbol, record.Quantity, record.Price,
		record.Mode, record.Status, record.Reason)
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		log.Warnf("⚠️ telegram 发送失败: %v", err)
		return false
	}
	return true
}

// NopNotifier 空通知器
type NopNotifier struct{}

var _ ports.Notifier = NopNotifier{}

func (NopNotifier) NotifyTrade(context.Context, *domain.TradeRecord) bool { return false }
