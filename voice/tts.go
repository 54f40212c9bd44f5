package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
)

// ErrSynthesis means every configured TTS provider failed.
var ErrSynthesis = errors.New("voice: all speech synthesis providers failed")

// Synthesizer is one TTS backend.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Speaker normalizes answer text and renders it through a primary
// provider with a deterministic fallback. Callers never see a primary
// failure; Speak errors only when every provider failed.
type Speaker struct {
	providers []Synthesizer
	logger    *slog.Logger

	// one Speaker serves concurrent requests and rand.Rand is not
	// goroutine-safe
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSpeaker builds the provider chain in fallback order. The rand
// source only drives the cosmetic interjection choice; tests pass a
// seeded one.
func NewSpeaker(rng *rand.Rand, providers ...Synthesizer) *Speaker {
	return &Speaker{
		providers: providers,
		rng:       rng,
		logger:    slog.Default(),
	}
}

// NewSpeakerFromEnv wires ElevenLabs as primary when its key is set,
// with the Google Translate voice as the always-available fallback.
func NewSpeakerFromEnv(rng *rand.Rand, elevenKey string) *Speaker {
	var providers []Synthesizer
	if elevenKey != "" {
		providers = append(providers, NewElevenLabs(elevenKey))
	}
	providers = append(providers, NewGoogleTranslateTTS())
	return NewSpeaker(rng, providers...)
}

// Speak renders text as mp3 audio. userName personalizes the optional
// interjection; voiceID selects the primary provider voice.
func (s *Speaker) Speak(ctx context.Context, text, voiceID, userName string) ([]byte, error) {
	speech := s.PrepareText(text, userName)

	var lastErr error
	for _, p := range s.providers {
		audio, err := p.Synthesize(ctx, speech, voiceID)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		s.logger.Warn("tts provider failed, falling back", "provider", p.Name(), "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrSynthesis, lastErr)
}

var interjections = []string{
	"Alright %s, ",
	"So %s, ",
	"Now %s, ",
	"You know %s, ",
	"Let me explain this to you %s. ",
	"Here's the thing %s, ",
}

// PrepareText makes the answer speech-friendly: markup characters are
// stripped, sentence breaks become pause-friendly commas, and about a
// third of the time a personalized interjection is prepended.
func (s *Speaker) PrepareText(text, userName string) string {
	text = strings.NewReplacer("*", "", "#", "", "`", "").Replace(text)
	text = strings.ReplaceAll(text, ". ", ", ")

	if userName != "" {
		s.mu.Lock()
		if s.rng.Float64() > 0.7 {
			lead := interjections[s.rng.Intn(len(interjections))]
			text = fmt.Sprintf(lead, userName) + text
		}
		s.mu.Unlock()
	}
	return text
}
