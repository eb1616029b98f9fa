package protocol

import "encoding/json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags a ContentBlock's shape. Generalized from the teacher's flat
// Message.Content string (goclaw internal/providers/types.go) into a tagged
// union so tool_use/tool_result pairing (spec §3 Session invariant) is
// addressable by id rather than positional string matching.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// ContentBlock is one typed unit of message content.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text, thinking
	Text string `json:"text,omitempty"`

	// image
	MediaType string `json:"mediaType,omitempty"`
	Data      []byte `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"toolUseId,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

func TextBlock(text string) ContentBlock { return ContentBlock{Type: BlockText, Text: text} }

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

func ToolResultBlock(toolUseID, text string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Text: text, IsError: isError}
}

func ThinkingBlock(text string) ContentBlock { return ContentBlock{Type: BlockThinking, Text: text} }

// Message is one turn in a Session: a role plus an ordered list of content
// blocks. Plain-text messages are represented as a single BlockText block.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// Text concatenates every text block's text, ignoring thinking and tool
// blocks.
func (m Message) Text() string {
	out := ""
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUses returns every tool_use block in the message, in declaration order.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ToolResultFor reports whether content contains a tool_result block whose
// ToolUseID matches id, satisfying the Session pairing invariant.
func (m Message) ToolResultFor(id string) (ContentBlock, bool) {
	for _, b := range m.Content {
		if b.Type == BlockToolResult && b.ToolUseID == id {
			return b, true
		}
	}
	return ContentBlock{}, false
}
