package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notifier 定义告警输送接口。Delivery is best-effort: a failure never rolls
// back the persisted alert state.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息到固定会话。
type TelegramNotifier struct {
	client *TelegramClient
	chatID string
	logger zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(client *TelegramClient, chatID string, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		client: client,
		chatID: chatID,
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 推送一条文本告警。
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := n.client.SendMessage(ctx, n.chatID, text); err != nil {
		return err
	}
	n.logger.Info().Str("chat_id", n.chatID).Msg("告警已发送 (Telegram)")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)

// FormatUsageAlert renders the daily-usage threshold alert.
func FormatUsageAlert(direction Direction, latest decimal.Decimal, threshold decimal.Decimal, day time.Time) string {
	arrow := "⬆️"
	label := "High"
	if direction == DirectionLow {
		arrow = "⬇️"
		label = "Low"
	}
	return fmt.Sprintf("%s %s usage alert\nLast complete day: %s kWh on %s\nThreshold: %s kWh/day",
		arrow, label, latest.StringFixed(2), day.UTC().Format(time.DateOnly), threshold.StringFixed(0))
}

// FormatDemandAlert renders the live-demand threshold crossing alert.
func FormatDemandAlert(direction Direction, demand float64, threshold float64, readAt time.Time) string {
	arrow := "⬆️"
	label := "High"
	if direction == DirectionLow {
		arrow = "⬇️"
		label = "Low"
	}
	return fmt.Sprintf("%s %s usage alert\nDemand: %.0fW at %s\nThreshold: %.0fW",
		arrow, label, demand, readAt.UTC().Format("2006-01-02 15:04"), threshold)
}

// FormatDemandReport renders the above-report-threshold status message.
func FormatDemandReport(demand float64, readAt time.Time) string {
	warn := ""
	if demand >= 3000 {
		warn = "⚠️ "
	}
	return fmt.Sprintf("%sDemand: %.0fW at %s", warn, demand, readAt.UTC().Format("2006-01-02 15:04"))
}
