package bus

import (
	"context"
	"sync"
)

// MessageBus is the concrete in-process implementation of EventPublisher
// and Router, buffering inbound/outbound traffic on channels so channel
// adapters, the gateway, and the Agent Turn Engine never call one another
// directly (spec §5 "channel adapters run on their own tasks and
// communicate with the core through message passing"). goclaw's own
// MessageBus body was filtered from the retrieval pack; this is written
// fresh against its bus.types.go contract.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu   sync.RWMutex
	subs map[string]EventHandler
}

// NewMessageBus builds a bus with the given channel buffer depth.
func NewMessageBus(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, buffer),
		outbound: make(chan OutboundMessage, buffer),
		subs:     make(map[string]EventHandler),
	}
}

// PublishInbound enqueues msg for the agent-side consumer. Non-blocking
// sends would drop traffic under load, so this blocks on a full buffer —
// callers run on their own adapter task (spec §5) and are expected to
// tolerate backpressure.
func (b *MessageBus) PublishInbound(msg InboundMessage) { b.inbound <- msg }

// ConsumeInbound blocks until a message is available or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues msg for channel-adapter delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) { b.outbound <- msg }

// SubscribeOutbound blocks until an outbound message is available or ctx
// is done. Multiple callers draining the same bus will each receive a
// disjoint subset of messages (it is a queue, not a broadcast) — the
// Channel Manager is the sole consumer in practice.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers a handler for broadcast Events under id, replacing
// any handler already registered under that id (spec §6 "proactive"
// delivery fans out to every connected client of the owning session).
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = handler
}

// Unsubscribe removes the handler registered under id, if any.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Broadcast fans event out to every subscribed handler.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}
