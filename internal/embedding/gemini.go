// Package embedding computes text embeddings with the Gemini API, optionally
// rate limited and cached in Redis.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Embedder computes the vector of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gemini embeds text with a Gemini embedding model.
type Gemini struct {
	client  *genai.Client
	model   *genai.EmbeddingModel
	limiter *rate.Limiter
}

// NewGemini creates a client for model. rps caps requests per second; zero
// means unlimited.
func NewGemini(ctx context.Context, apiKey, model string, rps float64) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("embedding api key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Gemini{
		client:  client,
		model:   client.EmbeddingModel(model),
		limiter: limiter,
	}, nil
}

// Embed returns the embedding of text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text for embedding")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}
	res, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding values returned")
	}
	return res.Embedding.Values, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
