// Package discord is a thin Channel Fabric adapter (spec §2) bridging
// Discord's gateway API to the bus. Adapted from the teacher's
// internal/channels/discord/discord.go, stripped of DB-backed pairing and
// per-channel typing-indicator control (out of this spec's scope) down to
// the policy/mention gating and chunked-send plumbing the spec actually
// needs.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/arialabs/aria/internal/bus"
	"github.com/arialabs/aria/internal/channels"
	"github.com/arialabs/aria/internal/config"
)

const maxMessageLen = 2000

// Channel connects to Discord via the bot gateway.
type Channel struct {
	*channels.BaseChannel
	session        *discordgo.Session
	cfg            config.DiscordConfig
	botUserID      string
	requireMention bool
}

// New builds a Discord channel from cfg.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Channel{
		BaseChannel:    channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:        session,
		cfg:            cfg,
		requireMention: requireMention,
	}, nil
}

// Start opens the Discord gateway connection.
func (c *Channel) Start(_ context.Context) error {
	c.session.AddHandler(c.handleMessage)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("discord: fetch bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.SetRunning(true)
	slog.Info("discord: connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message, chunking at Discord's 2000-char
// message cap, preferring to break on a newline near the boundary.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord: channel not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("discord: empty chat id")
	}
	content := msg.Content
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxMessageLen {
			cutAt := maxMessageLen
			if idx := lastIndexByte(content[:maxMessageLen], '\n'); idx > maxMessageLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	isDM := m.GuildID == ""
	peerKind := "group"
	if isDM {
		peerKind = "direct"
	}

	if !c.CheckPolicy(peerKind, channels.DMPolicy(c.cfg.DMPolicy), channels.GroupPolicy(c.cfg.GroupPolicy), senderID) {
		slog.Debug("discord: message rejected by policy", "sender_id", senderID, "peer_kind", peerKind)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		return
	}

	if peerKind == "group" && c.requireMention {
		mentioned := false
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}
		if !mentioned {
			return
		}
	}

	metadata := map[string]string{
		"message_id": m.ID,
		"guild_id":   m.GuildID,
	}
	c.HandleMessage(senderID, m.ChannelID, content, nil, metadata, peerKind)
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
