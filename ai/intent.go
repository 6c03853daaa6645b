package ai

import (
	"Muse/core"
	"strings"
	"unicode"
)

var (
	DefaultTriggers = []string{"show", "image", "photo", "picture", "display", "generate", "create", "draw", "make"}
	DefaultFillers  = []string{"show", "me", "a", "an", "the", "image", "of", "picture", "photo"}
)

const DefaultPromptPrefix = "High quality, detailed image of"

// IntentDetector decides by keyword matching whether a message asks for an
// image. Triggers match anywhere in the text, so "showcase" counts as "show".
type IntentDetector struct {
	triggers []string
	fillers  map[string]struct{}
	prefix   string
}

func NewIntentDetector(triggers, fillers []string, prefix string) *IntentDetector {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	if fillers == nil {
		fillers = DefaultFillers
	}
	if prefix == "" {
		prefix = DefaultPromptPrefix
	}
	d := &IntentDetector{
		fillers: make(map[string]struct{}, len(fillers)),
		prefix:  strings.TrimSpace(prefix),
	}
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			d.triggers = append(d.triggers, t)
		}
	}
	for _, f := range fillers {
		d.fillers[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	return d
}

func NewIntentDetectorFromConfig(conf *core.Config) *IntentDetector {
	return NewIntentDetector(conf.Intent.Triggers, conf.Intent.Fillers, conf.Intent.Prefix)
}

func (d *IntentDetector) ShouldGenerateImage(message string) bool {
	message = strings.ToLower(message)
	for _, t := range d.triggers {
		if strings.Contains(message, t) {
			return true
		}
	}
	return false
}

// DerivePrompt removes filler words and wraps what is left with the prompt
// prefix. A message made only of fillers yields the bare prefix.
func (d *IntentDetector) DerivePrompt(message string) string {
	var kept []string
	for _, word := range strings.Fields(strings.ToLower(message)) {
		bare := strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if _, filler := d.fillers[bare]; filler {
			continue
		}
		kept = append(kept, word)
	}
	subject := strings.Join(kept, " ")
	if subject == "" {
		return d.prefix
	}
	return d.prefix + " " + subject
}
