package core

import "context"

type ChatService interface {
	HandleTurn(ctx context.Context, identity string, conversation []ConversationTurn, persona string) ChatReply
	ClearMemory() (memory int, cache int)
}

// LanguageModel never fails the caller: on backend failure the outcome
// carries a user-facing fallback text together with the error.
type LanguageModel interface {
	GenerateReply(ctx context.Context, persona string, conversation []ConversationTurn) Outcome[string]
}

// ImageGenerator returns a base64 encoded image, or a failed outcome with
// an empty value when no image is available.
type ImageGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) Outcome[string]
}

type IntentDetector interface {
	ShouldGenerateImage(message string) bool
	DerivePrompt(message string) string
}
