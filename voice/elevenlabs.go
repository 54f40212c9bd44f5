package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// DefaultVoiceID is Rachel, the friendly warm teacher voice.
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// Voices is the tutor voice catalog exposed to the frontend.
var Voices = map[string]string{
	"Rachel (Friendly Female)":  "21m00Tcm4TlvDq8ikWAM",
	"Adam (Professional Male)":  "pNInz6obpgDQGcFmaJgB",
	"Clyde (Wise Elder)":        "2EiwWnXFnvU5JabPnv8n",
	"Domi (Young Enthusiastic)": "AZnzlk1XvdvUeBnXmlld",
	"Bella (Supportive Mentor)": "EXAVITQu4vr4xnSDxMaL",
}

// ElevenLabs is the primary speech synthesis provider.
type ElevenLabs struct {
	BaseURL string

	apiKey string
	client *http.Client
}

func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		BaseURL: elevenLabsBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings elevenLabsSettings `json:"voice_settings"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	req := elevenLabsRequest{
		Text:    text,
		ModelID: "eleven_monolingual_v1",
		VoiceSettings: elevenLabsSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.25,
			UseSpeakerBoost: true,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", e.BaseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
