// Package bus implements the inbound/outbound message fabric connecting
// channel adapters to the Agent Turn Engine (spec §2 "Channel Fabric",
// §4.1). Adapted near-verbatim from the teacher's internal/bus/types.go —
// already a thin, idiomatic contract — with InboundMessage/OutboundMessage
// generalized to carry a session key built by internal/sessions and a
// concrete in-process MessageBus (goclaw's own implementation of this
// contract was filtered from the retrieval pack).
package bus

import "context"

// InboundMessage is a message received from a channel adapter, destined
// for the Agent Turn Engine.
type InboundMessage struct {
	Channel      string
	SenderID     string
	ChatID       string
	Content      string
	Media        []string
	SessionKey   string
	PeerKind     string
	UserID       string
	HistoryLimit int
	Metadata     map[string]string
}

// OutboundMessage is a message to be delivered to a channel adapter,
// either a direct turn response or a proactive push (spec §4.2 "Scheduled-
// item fire events").
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Media    []MediaAttachment
	Metadata map[string]string
}

// MediaAttachment is a file to be sent alongside an OutboundMessage.
type MediaAttachment struct {
	URL         string
	ContentType string
	Caption     string
}

// Event is a server-side event broadcast to connected WebSocket clients,
// the transport-level wrapper around a pkg/protocol.Event.
type Event struct {
	Name    string
	Payload interface{}
}

// MessageHandler handles one inbound message.
type MessageHandler func(InboundMessage) error

// EventHandler handles one broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription so the gateway
// and the agent can depend on an interface instead of the concrete
// MessageBus (spec §5 "channel adapters ... communicate with the core
// through message passing").
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// Router abstracts inbound/outbound message routing between channel
// adapters and the core, decoupling the Channel Fabric from any one
// transport (spec §2 "Channel Fabric").
type Router interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
