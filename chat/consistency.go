package chat

import (
	"Muse/core"
	"Muse/lib/sl"
	"Muse/storage"
	"context"
	"log/slog"
)

// seedRange bounds freshly drawn seeds to [0, seedRange)
const seedRange = 1_000_000

// ResolveConsistentImage returns an image for prompt, reusing the identity's
// remembered seed so that consecutive images look related. An exact prompt
// repeat is served from the cache regardless of identity. An empty result
// with a nil error means the backend produced no image.
func (s *Service) ResolveConsistentImage(ctx context.Context, prompt, identity string) (string, error) {
	log := s.log.With(slog.String("identity", identity), sl.Text("prompt", prompt))

	if image, ok := s.cache.Get(prompt); ok {
		log.Debug("using cached image")
		return image, nil
	}

	var seed int64
	if memory, ok := s.memory.Get(identity); ok {
		seed = memory.Seed
		log = log.With(slog.Int64("seed", seed), slog.Bool("remembered", true))
	} else {
		seed = s.newSeed()
		log = log.With(slog.Int64("seed", seed), slog.Bool("remembered", false))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	out := s.images.Generate(ctx, core.GenerationRequest{
		Prompt: prompt,
		Steps:  s.image.Steps,
		Count:  s.image.Count,
		Width:  s.image.Width,
		Height: s.image.Height,
		Seed:   &seed,
	})
	if !out.Ok() || out.Value == "" {
		log.Warn("no image produced")
		return "", nil
	}

	s.memory.Set(identity, storage.GenerationMemoryEntry{
		PromptInfo: prompt,
		Seed:       seed,
		ImageData:  out.Value,
	})
	s.cache.Set(prompt, out.Value)
	log.Info("image stored")
	return out.Value, nil
}
