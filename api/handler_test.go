package api

import (
	"Muse/ai"
	"Muse/chat"
	"Muse/core"
	"Muse/storage"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// imageBackend fakes the Together images API and counts calls
type imageBackend struct {
	calls atomic.Int32
	image string
}

func (b *imageBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.calls.Add(1)
	if b.image == "" {
		_, _ = w.Write([]byte(`{"data":[]}`))
		return
	}
	_, _ = w.Write([]byte(`{"data":[{"b64_json":"` + b.image + `"}]}`))
}

type env struct {
	router  http.Handler
	backend *imageBackend
}

// newEnv wires the real clients against fake backends; an empty llmURL
// points the language model at a closed port.
func newEnv(t *testing.T, llmHandler http.Handler, image string) *env {
	t.Helper()
	conf := &core.Config{}
	conf.Ollama.Model = "llama3.2:latest"
	conf.Ollama.Timeout = 5 * time.Second
	conf.Together.Model = "flux"
	conf.Together.MaxSteps = 4
	conf.Together.Timeout = 5 * time.Second
	conf.Chat.Persona = "You are a helpful AI assistant."
	conf.Image.Width, conf.Image.Height, conf.Image.Steps, conf.Image.Count = 1024, 768, 20, 1

	if llmHandler != nil {
		llm := httptest.NewServer(llmHandler)
		t.Cleanup(llm.Close)
		conf.Ollama.URL = llm.URL
	} else {
		closed := httptest.NewServer(http.NotFoundHandler())
		conf.Ollama.URL = closed.URL
		closed.Close()
	}

	backend := &imageBackend{image: image}
	images := httptest.NewServer(backend)
	t.Cleanup(images.Close)
	conf.Together.URL = images.URL

	log := discardLogger()
	service := chat.NewServiceFromConfig(conf,
		ai.NewOllama(conf, log),
		ai.NewTogetherImages(conf, log),
		ai.NewIntentDetector(nil, nil, ""),
		storage.NewMemorySeedStore(),
		storage.NewPromptImageCache(0, 0),
		log,
	)
	return &env{router: NewRouter(NewHandler(service, 1<<20, log)), backend: backend}
}

func (e *env) post(t *testing.T, path, body string, header map[string]string) (*httptest.ResponseRecorder, MessageResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func replyWith(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": text, "done": true})
	}
}

func TestMessage_LanguageModelUnreachable(t *testing.T) {
	e := newEnv(t, nil, "IMG1")

	rec, resp := e.post(t, "/api/message", `{"conversation":[{"role":"user","content":"hello"}]}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ai.DegradedReply, resp.Text)
	assert.Empty(t, resp.ImageBase64)
	assert.Empty(t, resp.Error)
	assert.NotContains(t, rec.Body.String(), "imageBase64")
	assert.Equal(t, int32(0), e.backend.calls.Load())
}

func TestMessage_ImageGeneratedAndCached(t *testing.T) {
	e := newEnv(t, replyWith("A lovely sunset."), "IMG1")
	body := `{"conversation":[{"role":"assistant","content":"Hello there!"},{"role":"user","content":"draw me a sunset","timestamp":1700000000000}],"persona":"You are Rancho."}`
	header := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	_, resp := e.post(t, "/api/message", body, header)
	assert.True(t, strings.HasSuffix(resp.Text, "Here's the image you requested!"))
	assert.Equal(t, "IMG1", resp.ImageBase64)

	_, resp = e.post(t, "/api/message", body, header)
	assert.Equal(t, "IMG1", resp.ImageBase64)
	assert.Equal(t, int32(1), e.backend.calls.Load())
}

func TestMessage_ImageBackendReturnsNothing(t *testing.T) {
	e := newEnv(t, replyWith("Sure."), "")

	_, resp := e.post(t, "/api/message", `{"conversation":[{"role":"user","content":"show me a cat"}]}`, nil)

	assert.True(t, strings.HasSuffix(resp.Text, "I apologize, but I couldn't generate the image at this time."))
	assert.Empty(t, resp.ImageBase64)
}

func TestMessage_MalformedBody(t *testing.T) {
	e := newEnv(t, replyWith("unused"), "IMG1")

	for _, body := range []string{`{not json`, ``, `{"conversation":"oops"}`, `{"conversation":[]} xyz`, `{"conversation":[]}}`} {
		rec, resp := e.post(t, "/api/message", body, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ErrorText, resp.Text)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestMessage_EmptyConversation(t *testing.T) {
	e := newEnv(t, replyWith("Hi."), "IMG1")

	_, resp := e.post(t, "/api/message", `{"conversation":[]}`, nil)

	assert.Equal(t, "Hi.", resp.Text)
	assert.Empty(t, resp.Error)
	assert.Equal(t, int32(0), e.backend.calls.Load())
}

func TestMessage_BodyTooLarge(t *testing.T) {
	e := newEnv(t, replyWith("unused"), "IMG1")
	huge := `{"conversation":[{"role":"user","content":"` + strings.Repeat("x", 2<<20) + `"}]}`

	_, resp := e.post(t, "/api/message", huge, nil)
	assert.Equal(t, ErrorText, resp.Text)
	assert.NotEmpty(t, resp.Error)
}

type panickingChat struct {
	value any
}

func (p panickingChat) HandleTurn(context.Context, string, []core.ConversationTurn, string) core.ChatReply {
	panic(p.value)
}
func (p panickingChat) ClearMemory() (int, int)          { return 0, 0 }
func (p panickingChat) Stats() (int, storage.CacheStats) { return 0, storage.CacheStats{} }

func TestMessage_PanicIsContained(t *testing.T) {
	tests := []struct {
		value any
		text  string
		err   string
	}{
		{errors.New("nil map"), ErrorText, "nil map"},
		{"something odd", UnexpectedText, UnknownError},
	}
	for _, tt := range tests {
		router := NewRouter(NewHandler(panickingChat{value: tt.value}, 0, discardLogger()))
		req := httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(`{"conversation":[]}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp MessageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tt.text, resp.Text)
		assert.Equal(t, tt.err, resp.Error)
	}
}

func TestClearAndHealth(t *testing.T) {
	e := newEnv(t, replyWith("ok"), "IMG1")
	e.post(t, "/api/message", `{"conversation":[{"role":"user","content":"draw a fox"}]}`, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Memory)
	assert.Equal(t, 1, health.Cache.Entries)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/clear", nil)
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var cleared ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	assert.Equal(t, ClearResponse{Memory: 1, Cache: 1}, cleared)

	// a cleared cache means the backend is called again
	e.post(t, "/api/message", `{"conversation":[{"role":"user","content":"draw a fox"}]}`, nil)
	assert.Equal(t, int32(2), e.backend.calls.Load())
}

func TestIdentityKey(t *testing.T) {
	cases := map[string]string{
		"":                          UnknownIdentity,
		"203.0.113.7":               "203.0.113.7",
		"203.0.113.7, 198.51.100.1": "203.0.113.7",
		" , 198.51.100.1":           UnknownIdentity,
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/message", nil)
		if header != "" {
			req.Header.Set("X-Forwarded-For", header)
		}
		assert.Equal(t, want, IdentityKey(req), header)
	}
}

func TestRequestID(t *testing.T) {
	e := newEnv(t, replyWith("ok"), "IMG1")

	rec, _ := e.post(t, "/api/message", `{"conversation":[]}`, nil)
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	given := uuid.NewString()
	rec, _ = e.post(t, "/api/message", `{"conversation":[]}`, map[string]string{requestIDHeader: given})
	assert.Equal(t, given, rec.Header().Get(requestIDHeader))
}

func TestMethodNotAllowed(t *testing.T) {
	e := newEnv(t, replyWith("ok"), "IMG1")
	for _, path := range []string{"/api/message", "/api/admin/clear"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/missing", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
