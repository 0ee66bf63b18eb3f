package llm

// Role identifies the author of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // Assistant turns that requested tools
	ToolCallID string     // Tool turns: the call being answered
	ToolName   string     // Tool turns: the tool that produced Content
}

// Conversation is an immutable ordered list of turns. Appending returns a new
// value and never aliases the receiver's storage, so conversations can be handed
// across goroutines freely.
type Conversation struct {
	messages []Message
}

// NewConversation creates a conversation from the given turns
func NewConversation(msgs ...Message) Conversation {
	return Conversation{}.With(msgs...)
}

// With returns a new conversation with msgs appended
func (c Conversation) With(msgs ...Message) Conversation {
	out := make([]Message, 0, len(c.messages)+len(msgs))
	out = append(out, c.messages...)
	for _, m := range msgs {
		if len(m.ToolCalls) > 0 {
			calls := make([]ToolCall, len(m.ToolCalls))
			copy(calls, m.ToolCalls)
			m.ToolCalls = calls
		}
		out = append(out, m)
	}
	return Conversation{messages: out}
}

// Messages returns a copy of the turns
func (c Conversation) Messages() []Message {
	return Conversation{}.With(c.messages...).messages
}

// Len returns the number of turns
func (c Conversation) Len() int {
	return len(c.messages)
}

// Last returns the final turn, if any
func (c Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// System creates a system turn
func System(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// User creates a user turn
func User(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// Assistant creates an assistant turn
func Assistant(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResult creates a tool turn answering call
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, ToolName: call.Name}
}
