package ai

import (
	"Muse/core"
	"Muse/lib/sl"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const DegradedReply = "I apologize, but I'm having trouble responding right now."

const backendOllama = "ollama"

type Ollama struct {
	url        string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewOllama(conf *core.Config, log *slog.Logger) *Ollama {
	return &Ollama{
		url:        strings.TrimSuffix(conf.Ollama.URL, "/"),
		model:      conf.Ollama.Model,
		httpClient: &http.Client{Timeout: conf.Ollama.Timeout},
		log:        log.With(sl.Module("ollama")),
	}
}

// GenerateReply sends the persona and the whole conversation as one prompt.
// Failures are logged and turned into DegradedReply.
func (o *Ollama) GenerateReply(ctx context.Context, persona string, conversation []core.ConversationTurn) core.Outcome[string] {
	prompt := ComposePrompt(persona, conversation)
	o.log.With(
		slog.Int("turns", len(conversation)),
		sl.Text("prompt", prompt),
	).Debug("sending prompt")

	text, err := o.generate(ctx, prompt)
	if err != nil {
		o.log.Error("generating reply", sl.Err(err))
		return core.Failure(DegradedReply, err)
	}

	o.log.With(
		sl.Text("text", text),
	).Info("reply generated")
	return core.Success(text)
}

func (o *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	jsonBytes, err := json.Marshal(NewGenerateRequest(o.model, prompt))
	if err != nil {
		return "", o.fail(core.FailureMalformed, 0, fmt.Errorf("marshalling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/generate", bytes.NewReader(jsonBytes))
	if err != nil {
		return "", o.fail(core.FailureTransport, 0, fmt.Errorf("making request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", o.fail(core.FailureTransport, 0, fmt.Errorf("getting response: %w", err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			o.log.Warn("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", o.fail(core.FailureTransport, 0, fmt.Errorf("reading response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", o.fail(core.FailureStatus, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var generated GenerateResponse
	if err = json.Unmarshal(body, &generated); err != nil {
		return "", o.fail(core.FailureMalformed, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	return generated.Response, nil
}

func (o *Ollama) fail(kind core.FailureKind, status int, err error) error {
	return &core.BackendError{Backend: backendOllama, Kind: kind, Status: status, Err: err}
}

// ComposePrompt renders the persona followed by every turn as Human/Assistant
// lines, ending with an open "Assistant:" marker.
func ComposePrompt(persona string, conversation []core.ConversationTurn) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	for _, turn := range conversation {
		person := "Assistant"
		if turn.Role == core.RoleUser {
			person = "Human"
		}
		fmt.Fprintf(&b, "%s: %s\n", person, turn.Content)
	}
	b.WriteString("Assistant:")
	return b.String()
}
