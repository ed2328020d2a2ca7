package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway delivers notifications to one Telegram chat.
type TelegramGateway struct {
	logger *slog.Logger
	token  string
	chatID int64

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramGateway creates a gateway. The bot session is created lazily on
// first send so construction never hits the network.
func NewTelegramGateway(log *slog.Logger, token string, chatID int64) *TelegramGateway {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramGateway{
		logger: log.With(slog.String("gateway", "telegram")),
		token:  token,
		chatID: chatID,
	}
}

func (g *TelegramGateway) getOrCreateBot() (*tgbotapi.BotAPI, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bot != nil {
		return g.bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(g.token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	g.bot = bot
	return bot, nil
}

// Notify sends the message text to the configured chat.
func (g *TelegramGateway) Notify(ctx context.Context, msg Message) error {
	if g == nil || g.token == "" || g.chatID == 0 {
		return fmt.Errorf("telegram gateway not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := g.getOrCreateBot()
	if err != nil {
		return err
	}
	out := tgbotapi.NewMessage(g.chatID, msg.Prompt)
	if _, err := bot.Send(out); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	g.logger.Debug("notification sent",
		slog.String("type", msg.Type), slog.Bool("immediate", msg.Immediate))
	return nil
}
