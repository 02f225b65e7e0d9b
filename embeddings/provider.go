// Package embeddings turns text into fixed-dimension vectors. Providers
// never fail outright: any upstream problem degrades to a zero vector so
// memory writes keep flowing, and the zero vector doubles as the marker
// for empty input.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/murmur/config"
)

// Provider generates embedding vectors for text.
type Provider interface {
	// Embed returns the vector for text. Empty or whitespace-only text
	// and any upstream failure yield a zero vector of full dimension.
	Embed(ctx context.Context, text string) []float32

	// EmbedBatch embeds texts in order. The result always has one vector
	// per input; failed items degrade to zero vectors individually.
	EmbedBatch(ctx context.Context, texts []string) [][]float32

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Close releases provider resources.
	Close() error
}

// Zero returns a zero vector of the given dimension.
func Zero(dim int) []float32 {
	return make([]float32, dim)
}

// isBlank reports whether text carries no embeddable content.
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// New constructs the provider selected by configuration.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai", "openai_compatible":
		return NewOpenAIProvider(cfg)
	case "local":
		return NewLocalProvider(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
