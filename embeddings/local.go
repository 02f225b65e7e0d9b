package embeddings

import (
	"context"
	"hash/fnv"
	"math"

	"golang.org/x/sync/errgroup"
)

// LocalProvider produces deterministic pseudo-embeddings without any
// network dependency. Identical text always maps to the identical unit
// vector, which is enough for offline runs and tests; it carries no
// semantic signal.
type LocalProvider struct {
	dim int
}

// NewLocalProvider creates a local deterministic provider.
func NewLocalProvider(dim int) *LocalProvider {
	return &LocalProvider{dim: dim}
}

// Embed derives a unit vector from a hash of the text. Blank text yields
// a zero vector.
func (p *LocalProvider) Embed(_ context.Context, text string) []float32 {
	if isBlank(text) {
		return Zero(p.dim)
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, p.dim)
	var norm float64
	for i := range vec {
		// xorshift64 over the seeded state
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return Zero(p.dim)
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// EmbedBatch embeds items concurrently; each item degrades on its own.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	result := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			result[i] = p.Embed(gctx, text)
			return nil
		})
	}
	g.Wait() // workers never return errors

	return result
}

// Dimension returns the configured vector dimension.
func (p *LocalProvider) Dimension() int {
	return p.dim
}

// Close is a no-op for the local provider.
func (p *LocalProvider) Close() error {
	return nil
}

var _ Provider = (*LocalProvider)(nil)
