package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiClient implements embedding and generation against the Google
// Generative Language API.
type GeminiClient struct {
	BaseURL         string
	EmbeddingModel  string
	GenerationModel string

	apiKey string
	client *http.Client
}

const (
	geminiBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	geminiEmbeddingModel  = "embedding-001"
	geminiGenerationModel = "gemini-2.0-flash"
)

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		BaseURL:         geminiBaseURL,
		EmbeddingModel:  geminiEmbeddingModel,
		GenerationModel: geminiGenerationModel,
		apiKey:          apiKey,
		client:          &http.Client{Timeout: 60 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := geminiEmbedRequest{
		Model:   "models/" + g.EmbeddingModel,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	url := fmt.Sprintf("%s/models/%s:embedContent", g.BaseURL, g.EmbeddingModel)

	var resp geminiEmbedResponse
	if err := g.post(ctx, url, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: empty embedding")
	}
	return normalize(resp.Embedding.Values), nil
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature float32 `json:"temperature"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *GeminiClient) Generate(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	req := geminiGenerateRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{Temperature: temperature},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, g.GenerationModel)

	var resp geminiGenerateResponse
	if err := g.post(ctx, url, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini: %s", resp.Error.Message)
	}

	var b strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
		break
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}
	return b.String(), nil
}

func (g *GeminiClient) post(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
