// Package llm holds the provider-agnostic chat types shared by generators
// and the context assembler.
package llm

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the history handed to a generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// TrimLeadingAssistant drops assistant messages before the first user
// message. Providers that require a user message first call this before
// building their request.
func TrimLeadingAssistant(history []Message) []Message {
	for i, m := range history {
		if m.Role == RoleUser {
			return history[i:]
		}
	}
	return []Message{}
}
