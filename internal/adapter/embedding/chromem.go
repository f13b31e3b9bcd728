package embedding

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

// ChromemEmbedder adapts a per-text chromem embedding function to the batch
// Embedder port. Texts are embedded in order within the one call.
type ChromemEmbedder struct {
	fn        chromem.EmbeddingFunc
	model     string
	dimension int
}

func NewChromemEmbedder(fn chromem.EmbeddingFunc, model string, dimension int) *ChromemEmbedder {
	return &ChromemEmbedder{fn: fn, model: model, dimension: dimension}
}

// NewChromemOllamaEmbedder uses Ollama's native /api/embed endpoint.
func NewChromemOllamaEmbedder(model, baseURL string) *ChromemEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	return NewChromemEmbedder(chromem.NewEmbeddingFuncOllama(model, baseURL), model, ollamaDimension(model))
}

func (e *ChromemEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.fn(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed input %d: %w", i, err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

func (e *ChromemEmbedder) Dimension() int {
	return e.dimension
}

func (e *ChromemEmbedder) ModelName() string {
	return e.model
}
