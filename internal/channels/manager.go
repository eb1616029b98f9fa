package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arialabs/aria/internal/bus"
)

// Manager owns every registered Channel's lifecycle and routes outbound
// traffic from the bus to the adapter that owns the destination chat.
// Adapted from the teacher's internal/channels/manager.go, trimmed of the
// DB-backed multi-instance/run-tracking machinery this spec doesn't need —
// progress/streaming events are delivered over the gateway's WebSocket
// fabric (internal/gateway) instead of per-channel reaction forwarding.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus

	mu          sync.RWMutex
	dispatchCancel context.CancelFunc
}

// NewManager builds a Manager bound to msgBus. Channels are registered
// externally via RegisterChannel before StartAll.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{channels: make(map[string]Channel), bus: msgBus}
}

// RegisterChannel adds a channel under name, replacing any previously
// registered channel of the same name.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// StartAll starts the outbound dispatch loop and every registered channel.
// The dispatcher always starts, even with zero channels, so adapters
// registered later still have somewhere to deliver to.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchCancel = cancel
	channels := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		channels[k] = v
	}
	m.mu.Unlock()

	go m.dispatchOutbound(dispatchCtx)

	if len(channels) == 0 {
		slog.Warn("channels: no adapters registered")
		return nil
	}
	for name, ch := range channels {
		if err := ch.Start(ctx); err != nil {
			slog.Error("channels: start failed", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the outbound dispatcher and every registered channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.dispatchCancel != nil {
		m.dispatchCancel()
		m.dispatchCancel = nil
	}
	channels := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		channels[k] = v
	}
	m.mu.Unlock()

	for name, ch := range channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("channels: stop failed", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound drains the bus's outbound queue and routes each message
// to the channel it names, skipping internal (non-dispatchable) channels.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return // ctx cancelled
		}
		if IsInternalChannel(msg.Channel) {
			continue
		}
		m.mu.RLock()
		ch, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			slog.Warn("channels: unknown outbound channel", "channel", msg.Channel)
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("channels: send failed", "channel", msg.Channel, "error", err)
		}
	}
}

// GetChannel returns the registered channel named name, if any.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// SendToChannel delivers content directly to channelName/chatID, bypassing
// the bus, for callers that already know the destination channel.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	ch, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channels: %q not registered", channelName)
	}
	return ch.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: content})
}

// EnabledChannels returns the names of every registered channel.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
