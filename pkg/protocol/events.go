// Package protocol defines the wire vocabulary shared between the gateway
// and its clients: WebSocket event types, HTTP payload shapes, and the
// content-block message model used throughout the core.
package protocol

// EventType tags a server→client WebSocket frame. See spec §6.
type EventType string

const (
	EventResponse     EventType = "response"
	EventChunk        EventType = "chunk"
	EventSkillStart   EventType = "skill_start"
	EventSkillComplete EventType = "skill_complete"
	EventSkillError   EventType = "skill_error"
	EventMemory       EventType = "memory"
	EventPlanning     EventType = "planning"
	EventThinking     EventType = "thinking"
	EventTrigger      EventType = "trigger"
	EventProactive    EventType = "proactive"
	EventFile         EventType = "file"
	EventError        EventType = "error"
	EventPong         EventType = "pong"
)

// ClientMessageType tags a client→server WebSocket frame.
type ClientMessageType string

const (
	ClientChat ClientMessageType = "chat"
	ClientStop ClientMessageType = "stop"
	ClientPing ClientMessageType = "ping"
)

// ClientMessage is the envelope for every inbound WS frame.
type ClientMessage struct {
	Type        ClientMessageType `json:"type"`
	Message     string            `json:"message,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}

// Attachment references media sent alongside a chat message.
type Attachment struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Event is the tagged envelope for every outbound WS frame. Exactly one of
// the typed payload fields is populated, matching the `type` discriminant.
type Event struct {
	Type EventType `json:"type"`

	// response
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// skill_start / skill_complete / skill_error
	Skill  string `json:"skill,omitempty"`
	Input  any    `json:"input,omitempty"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	// memory
	Action string       `json:"action,omitempty"`
	Count  int          `json:"count,omitempty"`
	Items  []MemoryItem `json:"items,omitempty"`

	// planning / thinking
	Message string `json:"message,omitempty"`

	// proactive
	Category string `json:"category,omitempty"`
	Urgency  string `json:"urgency,omitempty"`
	Source   string `json:"source,omitempty"`

	// file
	Path    string `json:"path,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// MemoryItem is a compact projection of a memory entry surfaced in a
// `memory` progress event.
type MemoryItem struct {
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

func NewResponse(sessionID, content string) Event {
	return Event{Type: EventResponse, SessionID: sessionID, Content: content}
}

func NewChunk(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

func NewSkillStart(skill string, input any) Event {
	return Event{Type: EventSkillStart, Skill: skill, Input: input}
}

func NewSkillComplete(skill string, output any) Event {
	return Event{Type: EventSkillComplete, Skill: skill, Output: output}
}

func NewSkillError(skill, errMsg string) Event {
	return Event{Type: EventSkillError, Skill: skill, Error: errMsg}
}

func NewMemoryEvent(action string, items []MemoryItem) Event {
	return Event{Type: EventMemory, Action: action, Count: len(items), Items: items}
}

func NewPlanning(msg string) Event { return Event{Type: EventPlanning, Message: msg} }
func NewThinking(msg string) Event { return Event{Type: EventThinking, Message: msg} }
func NewTrigger(content string) Event { return Event{Type: EventTrigger, Content: content} }

func NewProactive(content, category, urgency, source string) Event {
	return Event{Type: EventProactive, Content: content, Category: category, Urgency: urgency, Source: source}
}

func NewFile(path, caption string) Event { return Event{Type: EventFile, Path: path, Caption: caption} }
func NewError(errMsg string) Event       { return Event{Type: EventError, Error: errMsg} }
func NewPong() Event                     { return Event{Type: EventPong} }
