package ai

import (
	"Muse/core"
	"Muse/lib/sl"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const backendTogether = "together"

// ImageGenerationRequest represents a request to the Together images API
type ImageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	Seed           *int64 `json:"seed,omitempty"`
	ResponseFormat string `json:"response_format"`
}

// ImageGenerationResponse represents the response from the Together images API
type ImageGenerationResponse struct {
	ID    string      `json:"id"`
	Model string      `json:"model"`
	Data  []ImageData `json:"data"`
	Error *Error      `json:"error"`
}

// ImageData represents a single generated image
type ImageData struct {
	Index   int    `json:"index"`
	URL     string `json:"url"`
	B64JSON string `json:"b64_json"`
}

type Error struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type TogetherImages struct {
	url        string
	apiKey     string
	model      string
	maxSteps   int
	httpClient *http.Client
	log        *slog.Logger
}

func NewTogetherImages(conf *core.Config, log *slog.Logger) *TogetherImages {
	t := &TogetherImages{
		url:        conf.Together.URL,
		apiKey:     conf.Together.ApiKey,
		model:      conf.Together.Model,
		maxSteps:   conf.Together.MaxSteps,
		httpClient: &http.Client{Timeout: conf.Together.Timeout},
		log:        log.With(sl.Module("together")),
	}
	t.log.With(
		slog.String("model", t.model),
		sl.Secret(t.apiKey),
	).Debug("image client ready")
	return t
}

// NewImageRequest builds the wire request, clamping steps to the backend maximum
func (t *TogetherImages) NewImageRequest(params core.GenerationRequest) *ImageGenerationRequest {
	steps := params.Steps
	if steps <= 0 || steps > t.maxSteps {
		steps = t.maxSteps
	}
	n := params.Count
	if n <= 0 {
		n = 1
	}
	return &ImageGenerationRequest{
		Model:          t.model,
		Prompt:         params.Prompt,
		Width:          params.Width,
		Height:         params.Height,
		Steps:          steps,
		N:              n,
		Seed:           params.Seed,
		ResponseFormat: "base64",
	}
}

// Generate returns the first base64 image of the response. It never returns
// an error to the caller; a failed outcome has an empty value.
func (t *TogetherImages) Generate(ctx context.Context, params core.GenerationRequest) core.Outcome[string] {
	request := t.NewImageRequest(params)
	log := t.log.With(
		sl.Text("prompt", request.Prompt),
		slog.Int("steps", request.Steps),
	)
	if request.Seed != nil {
		log = log.With(slog.Int64("seed", *request.Seed))
	}

	image, err := t.generate(ctx, request)
	if err != nil {
		log.Error("generating image", sl.Err(err))
		return core.Failure("", err)
	}
	log.With(slog.Int("size", len(image))).Info("image generated")
	return core.Success(image)
}

func (t *TogetherImages) generate(ctx context.Context, request *ImageGenerationRequest) (string, error) {
	jsonBytes, err := json.Marshal(request)
	if err != nil {
		return "", t.fail(core.FailureMalformed, 0, fmt.Errorf("marshalling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", t.fail(core.FailureTransport, 0, fmt.Errorf("making request: %w", err))
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", t.fail(core.FailureTransport, 0, fmt.Errorf("getting response: %w", err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.log.Warn("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", t.fail(core.FailureTransport, 0, fmt.Errorf("reading response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", t.fail(core.FailureStatus, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var generated ImageGenerationResponse
	if err = json.Unmarshal(body, &generated); err != nil {
		return "", t.fail(core.FailureMalformed, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}
	if generated.Error != nil && generated.Error.Message != "" {
		return "", t.fail(core.FailureMalformed, resp.StatusCode, errors.New(generated.Error.Message))
	}
	if len(generated.Data) == 0 || generated.Data[0].B64JSON == "" {
		return "", t.fail(core.FailureMalformed, resp.StatusCode, errors.New("no image in response"))
	}
	return generated.Data[0].B64JSON, nil
}

func (t *TogetherImages) fail(kind core.FailureKind, status int, err error) error {
	return &core.BackendError{Backend: backendTogether, Kind: kind, Status: status, Err: err}
}
