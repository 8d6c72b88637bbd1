package memory

import (
	"context"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// ErrDimensionMismatch is returned when an embedding vector does not match
// model.EmbeddingDimension. This is a precondition violation, not a retryable
// condition.
var ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

// Embedder turns text into a fixed-dimension embedding vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type gollemEmbedder struct {
	llm       gollem.LLMClient
	dimension int
}

// NewEmbedder creates an Embedder backed by the LLM client's embedding API
func NewEmbedder(llm gollem.LLMClient) Embedder {
	return &gollemEmbedder{
		llm:       llm,
		dimension: model.EmbeddingDimension,
	}
}

func (e *gollemEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.llm.GenerateEmbedding(ctx, e.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.New("embedding generation returned empty result")
	}

	if len(embeddings[0]) != e.dimension {
		return nil, goerr.Wrap(ErrDimensionMismatch, "unexpected embedding size",
			goerr.V("want", e.dimension), goerr.V("got", len(embeddings[0])))
	}

	vec := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		vec[i] = float32(v)
	}

	return vec, nil
}

// validateEmbedding rejects vectors of the wrong dimension at the search
// boundary instead of silently truncating or padding
func validateEmbedding(embedding []float32) error {
	if len(embedding) != model.EmbeddingDimension {
		return goerr.Wrap(ErrDimensionMismatch, "query embedding has wrong dimension",
			goerr.V("want", model.EmbeddingDimension), goerr.V("got", len(embedding)))
	}
	return nil
}
