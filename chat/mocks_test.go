package chat

import (
	"Muse/ai"
	"Muse/core"
	"Muse/storage"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

type stubLLM struct {
	mu       sync.Mutex
	text     string
	fail     bool
	persona  string
	received []core.ConversationTurn
}

func (s *stubLLM) GenerateReply(_ context.Context, persona string, conversation []core.ConversationTurn) core.Outcome[string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = persona
	s.received = conversation
	if s.fail {
		return core.Failure(ai.DegradedReply, &core.BackendError{Backend: "ollama", Kind: core.FailureTransport, Err: errors.New("connection refused")})
	}
	return core.Success(s.text)
}

func (s *stubLLM) lastPersona() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

type stubImages struct {
	mu       sync.Mutex
	image    string
	panicMsg string
	requests []core.GenerationRequest
}

func (s *stubImages) Generate(_ context.Context, req core.GenerationRequest) core.Outcome[string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.requests = append(s.requests, req)
	if s.image == "" {
		return core.Failure("", &core.BackendError{Backend: "together", Kind: core.FailureMalformed, Err: errors.New("no image")})
	}
	return core.Success(s.image)
}

func (s *stubImages) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubImages) lastSeed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[len(s.requests)-1].Seed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	llm     *stubLLM
	images  *stubImages
	memory  *storage.MemorySeedStore
	cache   *storage.PromptImageCache
	service *Service
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		llm:    &stubLLM{text: "Sure!"},
		images: &stubImages{image: "IMG1"},
		memory: storage.NewMemorySeedStore(),
		cache:  storage.NewPromptImageCache(0, 0),
	}
	f.service = NewService(f.llm, f.images, ai.NewIntentDetector(nil, nil, ""), f.memory, f.cache, discardLogger(), opts...)
	return f
}
