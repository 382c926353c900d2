// Package embeddings maps text to fixed-length vectors. A remote provider
// can degrade per text to a deterministic hash-based vector, so retrieval
// never hard-fails solely because the semantic provider is down.
package embeddings

import (
	"context"
	"strings"
)

// FallbackDim is the dimension of hash-based fallback vectors.
const FallbackDim = 768

// Provider converts text into embedding vectors. Embed returns one vector
// per input text, same order as the input.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HashProvider is a deterministic, dependency-free embedder: each word of
// the lowercased text bumps one bucket of a fixed-size vector. It stands in
// when no semantic provider is configured and keeps unit tests reproducible.
type HashProvider struct{}

// NewHashProvider creates a hash-based embedding provider.
func NewHashProvider() *HashProvider {
	return &HashProvider{}
}

// Embed returns one fallback vector per text. It never fails.
func (h *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = HashVector(text)
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (h *HashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return HashVector(text), nil
}

// HashVector derives a vector from a hash of the text's words: each word
// selects a bucket and the bucket value moves by v = (v+1)*0.1. Repeated
// words therefore weigh more than single occurrences.
func HashVector(text string) []float32 {
	vec := make([]float32, FallbackDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		pos := wordHash(word) % FallbackDim
		vec[pos] = (vec[pos] + 1) * 0.1
	}
	return vec
}

// wordHash is the classic shift-and-subtract string hash over signed 32-bit
// arithmetic, folded to a non-negative int.
func wordHash(s string) int {
	var h int32
	for _, c := range s {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v)
}
