package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

var (
	// ErrNoSpeech means the audio contained no recognizable speech.
	ErrNoSpeech = errors.New("voice: no speech detected")

	// ErrRecognition means the recognition service was unreachable or
	// rejected the request. Retryable.
	ErrRecognition = errors.New("voice: speech recognition service unavailable")
)

// Recognizer turns a recorded question into text through Google Cloud
// Speech-to-Text.
type Recognizer struct {
	client   *speech.Client
	language string
}

func NewRecognizer(ctx context.Context) (*Recognizer, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_SPEECH_CREDENTIALS_FILE"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &Recognizer{client: client, language: "en-US"}, nil
}

func (r *Recognizer) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Recognize transcribes one short utterance. Empty results map to
// ErrNoSpeech, transport failures to ErrRecognition.
func (r *Recognizer) Recognize(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoSpeech
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := r.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   inferEncoding(mimeType),
			LanguageCode:               r.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	var full strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(result.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)
	}

	if full.Len() == 0 {
		return "", ErrNoSpeech
	}
	return full.String(), nil
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus") || strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
