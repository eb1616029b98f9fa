// Package telegram is a thin Channel Fabric adapter (spec §2) bridging
// Telegram's Bot API (long polling) to the bus. Adapted from the teacher's
// internal/channels/telegram/channel.go, stripped of DB-backed pairing,
// streaming drafts, and group file-writer commands (out of this spec's
// scope) down to long polling, policy/mention gating, and plain sends.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/arialabs/aria/internal/bus"
	"github.com/arialabs/aria/internal/channels"
	"github.com/arialabs/aria/internal/config"
)

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot            *telego.Bot
	cfg            config.TelegramConfig
	requireMention bool
	pollCancel     context.CancelFunc
}

// New builds a Telegram channel from cfg.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Channel{
		BaseChannel:    channels.NewBaseChannel("telegram", msgBus, cfg.AllowFrom),
		bot:            bot,
		cfg:            cfg,
		requireMention: true,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}
	c.SetRunning(true)
	slog.Info("telegram: connected", "username", c.bot.Username())

	go func() {
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				c.handleUpdate(pollCtx, update)
			}
		}
	}()
	return nil
}

// Stop cancels the long-polling loop.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	return nil
}

// Send delivers an outbound message to a Telegram chat ID.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram: channel not running")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChatID, err)
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content))
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (c *Channel) handleUpdate(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	userID := strconv.FormatInt(message.From.ID, 10)
	senderID := userID
	if message.From.Username != "" {
		senderID = userID + "|" + message.From.Username
	}

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"
	peerKind := "direct"
	if isGroup {
		peerKind = "group"
	}

	if !c.CheckPolicy(peerKind, channels.DMPolicy(c.cfg.DMPolicy), channels.GroupPolicy(c.cfg.GroupPolicy), senderID) {
		slog.Debug("telegram: message rejected by policy", "sender_id", senderID, "peer_kind", peerKind)
		return
	}

	content := message.Text
	if content == "" {
		return
	}

	if isGroup && c.requireMention {
		mentioned := false
		if botUsername := c.bot.Username(); botUsername != "" {
			mentioned = strings.Contains(content, "@"+botUsername)
		}
		if !mentioned {
			return
		}
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	metadata := map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"username":   message.From.Username,
	}
	c.HandleMessage(senderID, chatID, content, nil, metadata, peerKind)
}
