package ai

// GenerateRequest is the body of an Ollama /api/generate call
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateResponse is the non-streaming answer of /api/generate
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewGenerateRequest(model, prompt string) *GenerateRequest {
	return &GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	}
}
