package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// OllamaClient implements embedding and generation against a local
// Ollama server.
type OllamaClient struct {
	URL            string
	EmbeddingModel string
	Model          string

	client *http.Client
}

func NewOllamaClient(url, embeddingModel, model string) *OllamaClient {
	if url == "" {
		url = "http://localhost:11434"
	}
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}
	if model == "" {
		model = "llama3.1"
	}
	return &OllamaClient{
		URL:            strings.TrimRight(url, "/"),
		EmbeddingModel: embeddingModel,
		Model:          model,
		client:         &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := ollamaEmbeddingRequest{
		Model:  o.EmbeddingModel,
		Prompt: text,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL+"/api/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ollamaResp ollamaEmbeddingResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding")
	}

	return normalize(ollamaResp.Embedding), nil
}

type ollamaGenerateRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float32 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *OllamaClient) Generate(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	req := ollamaGenerateRequest{
		Model:       o.Model,
		System:      system,
		Prompt:      prompt,
		Temperature: temperature,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// either a single object or a stream of chunks; collect both
	var b strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for decoder.More() {
		var chunk ollamaGenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("ollama: empty response")
	}
	return b.String(), nil
}

// normalize scales the vector to unit length so similarity search can
// use a plain dot product.
func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
