package chat

import (
	"Muse/core"
	"Muse/lib/sl"
	"Muse/storage"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	ImageReadyNote  = "\nHere's the image you requested!"
	ImageFailedNote = "\nI apologize, but I couldn't generate the image at this time."
	ImageErrorNote  = "\nI encountered an error while trying to generate the image."
)

const DefaultPersona = "You are a helpful AI assistant."

// ImageSettings are the generation parameters used for every image
type ImageSettings struct {
	Width  int
	Height int
	Steps  int
	Count  int
}

// Service sequences the language model, intent detection and image
// generation for one chat turn. It keeps no per-request state.
type Service struct {
	llm     core.LanguageModel
	images  core.ImageGenerator
	intent  core.IntentDetector
	memory  storage.SeedMemory
	cache   storage.ImageCache
	persona string
	image   ImageSettings
	newSeed func() int64
	log     *slog.Logger
}

type Option func(*Service)

// WithSeedSource replaces the random source used for identities without a remembered seed
func WithSeedSource(f func() int64) Option {
	return func(s *Service) { s.newSeed = f }
}

func WithPersona(persona string) Option {
	return func(s *Service) {
		if persona != "" {
			s.persona = persona
		}
	}
}

func WithImageSettings(settings ImageSettings) Option {
	return func(s *Service) { s.image = settings }
}

func NewService(
	llm core.LanguageModel,
	images core.ImageGenerator,
	intent core.IntentDetector,
	memory storage.SeedMemory,
	cache storage.ImageCache,
	log *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		llm:     llm,
		images:  images,
		intent:  intent,
		memory:  memory,
		cache:   cache,
		persona: DefaultPersona,
		image:   ImageSettings{Width: 1024, Height: 768, Steps: 20, Count: 1},
		newSeed: func() int64 { return rand.Int64N(seedRange) },
		log:     log.With(sl.Module("chat")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromConfig(
	conf *core.Config,
	llm core.LanguageModel,
	images core.ImageGenerator,
	intent core.IntentDetector,
	memory storage.SeedMemory,
	cache storage.ImageCache,
	log *slog.Logger,
) *Service {
	return NewService(llm, images, intent, memory, cache, log,
		WithPersona(conf.Chat.Persona),
		WithImageSettings(ImageSettings{
			Width:  conf.Image.Width,
			Height: conf.Image.Height,
			Steps:  conf.Image.Steps,
			Count:  conf.Image.Count,
		}),
	)
}

// HandleTurn answers the conversation. The text reply is always returned;
// problems in the image branch only add a sentence to it.
func (s *Service) HandleTurn(ctx context.Context, identity string, conversation []core.ConversationTurn, persona string) core.ChatReply {
	if persona == "" {
		persona = s.persona
	}

	reply := s.llm.GenerateReply(ctx, persona, conversation)
	if !reply.Ok() {
		s.log.With(slog.String("identity", identity)).Warn("language model degraded", sl.Err(reply.Err))
	}
	result := core.ChatReply{Text: reply.Value}

	lastUserMessage := core.LastUserMessage(conversation)
	if !s.intent.ShouldGenerateImage(lastUserMessage) {
		return result
	}

	image, err := s.imageBranch(ctx, lastUserMessage, identity)
	switch {
	case err != nil:
		s.log.With(slog.String("identity", identity)).Error("image generation", sl.Err(err))
		result.Text += ImageErrorNote
	case image == "":
		result.Text += ImageFailedNote
	default:
		result.ImageBase64 = image
		result.Text += ImageReadyNote
	}
	return result
}

func (s *Service) imageBranch(ctx context.Context, message, identity string) (image string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	prompt := s.intent.DerivePrompt(message)
	return s.ResolveConsistentImage(ctx, prompt, identity)
}

// ClearMemory drops every remembered seed and cached image
func (s *Service) ClearMemory() (memory int, cache int) {
	memory = s.memory.Clear()
	cache = s.cache.Clear()
	s.log.Info("memory cleared", slog.Int("memory", memory), slog.Int("cache", cache))
	return memory, cache
}

// Stats reports the size of the shared stores
func (s *Service) Stats() (memory int, cache storage.CacheStats) {
	return s.memory.Len(), s.cache.Stats()
}
