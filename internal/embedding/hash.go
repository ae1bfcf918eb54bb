package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches the migration's vector column and the default OpenAI model.
const DefaultDimensions = 1536

// Hash is a deterministic, offline embedding provider. Identical text always
// maps to the same unit vector; it carries no semantic signal and is meant for
// tests, demos and air-gapped installs.
type Hash struct {
	dims int
}

// NewHash creates a hash provider. dims <= 0 selects DefaultDimensions.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Hash{dims: dims}
}

func (h *Hash) Name() string    { return "hash" }
func (h *Hash) Model() string   { return "hash-fnv64a" }
func (h *Hash) Dimensions() int { return h.dims }

// Embed returns one vector per input text.
func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	vec := make([]float32, h.dims)
	var norm float64
	for i := range vec {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
