package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleTranslateTTSURL = "https://translate.google.com/translate_tts"

// maxGoogleTTSChars is the per-request text limit of the endpoint;
// longer text is split at sentence boundaries and the mp3 segments are
// concatenated.
const maxGoogleTTSChars = 180

// GoogleTranslateTTS is the credential-free fallback synthesis
// provider. It ignores the voice selector.
type GoogleTranslateTTS struct {
	BaseURL string

	client *http.Client
}

func NewGoogleTranslateTTS() *GoogleTranslateTTS {
	return &GoogleTranslateTTS{
		BaseURL: googleTranslateTTSURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GoogleTranslateTTS) Name() string { return "gtts" }

func (g *GoogleTranslateTTS) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	var audio []byte
	for _, part := range splitForTTS(text, maxGoogleTTSChars) {
		segment, err := g.fetch(ctx, part)
		if err != nil {
			return nil, err
		}
		audio = append(audio, segment...)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("gtts: nothing to synthesize")
	}
	return audio, nil
}

func (g *GoogleTranslateTTS) fetch(ctx context.Context, text string) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", "en")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtts error: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// splitForTTS cuts text into segments no longer than limit, preferring
// sentence and word boundaries.
func splitForTTS(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var parts []string
	for len(text) > limit {
		cut := limit
		window := text[:limit]
		for _, sep := range []string{". ", ", ", " "} {
			if i := strings.LastIndex(window, sep); i > 0 {
				cut = i + len(sep)
				break
			}
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
