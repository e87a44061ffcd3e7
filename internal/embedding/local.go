package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder produces deterministic embeddings without any external
// service by hashing word tokens into fixed buckets. Quality is far below
// a real model, but vectors are stable across processes, which makes it
// suitable for offline loads, fixtures and tests.
type LocalEmbedder struct {
	dimension int
}

// NewLocalEmbedder creates a local embedder with the given dimension.
func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalEmbedder{dimension: dimension}
}

// Embed generates embeddings for the given texts.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.embed(text)
	}
	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *LocalEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// Model returns the local model identifier.
func (e *LocalEmbedder) Model() string {
	return "local-hash-v1"
}

// Dimension returns the embedding dimension.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, token := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()

		bucket := int(sum % uint32(e.dimension))
		// Half the hash bits pick the bucket, one more picks the sign, so
		// unrelated tokens sharing a bucket tend to cancel rather than pile up.
		if sum&0x80000000 != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}
	normalizeL2(vec)
	return vec
}

// Tokenize lowercases text and splits it on any non-alphanumeric run.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalizeL2 scales vec to unit length in place. Zero vectors are left
// untouched.
func normalizeL2(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
