package core

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a chat as the client sends it.
// Timestamp is in milliseconds since epoch.
type ConversationTurn struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// LastUserMessage returns the content of the most recent user turn,
// or an empty string if there is none.
func LastUserMessage(conversation []ConversationTurn) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == RoleUser {
			return conversation[i].Content
		}
	}
	return ""
}

// GenerationRequest holds the parameters of a single image generation call.
// A nil Seed lets the backend choose one.
type GenerationRequest struct {
	Prompt string
	Steps  int
	Count  int
	Width  int
	Height int
	Seed   *int64
}

type ChatReply struct {
	Text        string
	ImageBase64 string
}
