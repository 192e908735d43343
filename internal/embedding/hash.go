package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"assistant/internal/domain"
)

// HashEmbedder is a local, dependency-free embedder using the feature
// hashing trick: every token is hashed into a fixed-dimension signed bucket
// and the resulting vector is L2-normalised. It captures lexical rather than
// semantic similarity, which makes it suitable as an offline default and as
// a deterministic test vehicle.
type HashEmbedder struct {
	dimension int
	model     string
	tokens    *regexp.Regexp
}

// NewHashEmbedder creates a hashing embedder with the given dimensionality.
func NewHashEmbedder(dimension int) (*HashEmbedder, error) {
	if dimension <= 0 {
		return nil, domain.E(domain.KindInvalidConfiguration, "embedding dimension must be positive")
	}
	return &HashEmbedder{
		dimension: dimension,
		model:     "hash-v1",
		tokens:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
	}, nil
}

// Dimension returns the fixed output dimensionality.
func (e *HashEmbedder) Dimension() int { return e.dimension }

// Model returns the embedder identifier.
func (e *HashEmbedder) Model() string { return e.model }

// Embed hashes the tokens of text into a normalised vector. The same text
// always yields the same vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.E(domain.KindInvalidInput, "text is empty")
	}
	toks := e.tokens.FindAllString(strings.ToLower(text), -1)
	if len(toks) == 0 {
		return nil, domain.E(domain.KindInvalidInput, "text contains no tokens")
	}
	vec := make([]float32, e.dimension)
	for i, tok := range toks {
		e.add(vec, tok)
		if i > 0 {
			// bigrams preserve a little local word order
			e.add(vec, toks[i-1]+" "+tok)
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order, stopping at the first failure.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *HashEmbedder) add(vec []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}
