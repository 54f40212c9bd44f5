package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studybuddy/ingest"
	"studybuddy/model"
	"studybuddy/store"
	"studybuddy/types"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultTopK is how many chunks are retrieved per question.
	DefaultTopK = 5

	// maxContextTokens bounds the retrieved context fed to the model so
	// the prompt stays comfortably inside the generation window.
	maxContextTokens = 3000
)

const systemTemplate = `You are a friendly and helpful tutor who speaks naturally like a real teacher.

MATERIAL INFORMATION: %s

You ALWAYS have access to the materials that were uploaded. If you don't find the exact answer in the provided context, try to provide information based on what you do see in the context. Only if you truly can't find anything related should you say so openly, answer from your best general knowledge of the topic, and be transparent that the uploaded material didn't directly cover it.

Your tone should be warm, encouraging, and conversational - like a supportive teacher who wants to see their students succeed.
Use examples, analogies, and a touch of humor where appropriate to make complex concepts easier to understand.

Keep your responses fairly concise so they can be comfortably spoken back to the user.
Use contractions (don't, can't, etc.) and casual phrases like a real teacher would use.
Break up long sentences into shorter ones. Vary your sentence structure.

Sometimes use interjections like "Hmm," "Well," "You know," "So," etc. to sound more natural.
Occasionally refer to the student by name.

Remember that you're speaking to %s, so address them personally and be encouraging.`

// Profile carries the per-session facts the prompt is personalized with.
type Profile struct {
	UserName string
	Summary  types.CorpusSummary
}

// Answerer runs the retrieval-augmented generation step: top-k
// retrieval, grounded prompt assembly, one generation call.
type Answerer struct {
	embedder    model.Embedder
	generator   model.Generator
	topK        int
	temperature float32
	logger      *slog.Logger
}

func New(embedder model.Embedder, generator model.Generator, topK int, temperature float32) *Answerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{
		embedder:    embedder,
		generator:   generator,
		topK:        topK,
		temperature: temperature,
		logger:      slog.Default(),
	}
}

// Answer retrieves context for the question and generates a grounded
// reply. History is not mutated here; the session appends turns only
// after a successful return.
func (a *Answerer) Answer(ctx context.Context, question string, index store.VectorStorer, profile Profile) (string, []types.ScoredChunk, error) {
	start := time.Now()

	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := index.Search(ctx, vec, a.topK)
	if err != nil {
		return "", nil, fmt.Errorf("retrieve context: %w", err)
	}

	system := fmt.Sprintf(systemTemplate, ingest.Describe(profile.Summary), profile.UserName)
	prompt := buildPrompt(hits, question)

	answer, err := a.generator.Generate(ctx, system, prompt, a.temperature)
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}

	a.logger.Info("answer generated",
		"chunks", len(hits),
		"prompt_tokens", countTokens(system+prompt),
		"took", time.Since(start))
	return answer, hits, nil
}

// buildPrompt concatenates the retrieved chunks as context, trimmed to
// the token budget, followed by the raw question.
func buildPrompt(hits []types.ScoredChunk, question string) string {
	var b strings.Builder
	b.WriteString("Use the following context from the uploaded materials to answer the student's question:\n\n")

	budget := maxContextTokens
	for _, h := range hits {
		cost := countTokens(h.Chunk.Content)
		if cost > budget {
			break
		}
		budget -= cost
		fmt.Fprintf(&b, "[%s, page %d]\n%s\n\n", h.Chunk.DocName, h.Chunk.Page, h.Chunk.Content)
	}

	b.WriteString("Question:\n")
	b.WriteString(question)
	return b.String()
}

func countTokens(text string) int {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		// rough fallback, four characters per token
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
