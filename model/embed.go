package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Embedder turns text into a fixed-length normalized vector. The same
// Embedder instance must serve both index build and query; mixing
// embedding models between the two breaks the similarity space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces one completion for an assembled prompt. Stateless
// per call; conversation history is managed by the session, not here.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

// Provider bundles the embedding and generation capabilities of one
// model backend.
type Provider struct {
	Name      string
	Embedder  Embedder
	Generator Generator
}

var ErrMissingCredential = errors.New("model: required API credential is not set")

// NewProviderFromEnv selects the model backend from LLM_PROVIDER:
// "gemini" (default), "openai" or "ollama".
func NewProviderFromEnv() (*Provider, error) {
	name := os.Getenv("LLM_PROVIDER")
	if name == "" {
		name = "gemini"
	}

	switch name {
	case "gemini":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: GOOGLE_API_KEY", ErrMissingCredential)
		}
		client := NewGeminiClient(key)
		slog.Info("model provider configured", "provider", name, "model", client.GenerationModel)
		return &Provider{Name: name, Embedder: client, Generator: client}, nil

	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingCredential)
		}
		client := NewOpenAIClient(key)
		slog.Info("model provider configured", "provider", name, "model", client.model)
		return &Provider{Name: name, Embedder: client, Generator: client}, nil

	case "ollama":
		client := NewOllamaClient(os.Getenv("OLLAMA_URL"), os.Getenv("OLLAMA_EMBEDDING_MODEL"), os.Getenv("OLLAMA_MODEL"))
		slog.Info("model provider configured", "provider", name, "model", client.Model)
		return &Provider{Name: name, Embedder: client, Generator: client}, nil

	default:
		return nil, fmt.Errorf("model: unknown provider %q", name)
	}
}
