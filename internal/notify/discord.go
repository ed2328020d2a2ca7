package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DiscordGateway delivers notifications to one Discord channel.
type DiscordGateway struct {
	logger    *slog.Logger
	token     string
	channelID string

	mu      sync.Mutex
	session *discordgo.Session
}

// NewDiscordGateway creates a gateway. The session is opened lazily.
func NewDiscordGateway(log *slog.Logger, token, channelID string) *DiscordGateway {
	if log == nil {
		log = slog.Default()
	}
	return &DiscordGateway{
		logger:    log.With(slog.String("gateway", "discord")),
		token:     token,
		channelID: channelID,
	}
}

func (g *DiscordGateway) getOrCreateSession() (*discordgo.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		return g.session, nil
	}
	session, err := discordgo.New("Bot " + g.token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	g.session = session
	return session, nil
}

// Notify sends the message text to the configured channel.
func (g *DiscordGateway) Notify(ctx context.Context, msg Message) error {
	if g == nil || g.token == "" || g.channelID == "" {
		return fmt.Errorf("discord gateway not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	session, err := g.getOrCreateSession()
	if err != nil {
		return err
	}
	if _, err := session.ChannelMessageSend(g.channelID, msg.Prompt); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	g.logger.Debug("notification sent",
		slog.String("type", msg.Type), slog.Bool("immediate", msg.Immediate))
	return nil
}
