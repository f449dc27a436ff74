package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Local is a deterministic feature-hashing embedder.
//
// Each token is hashed into one of Dimension() buckets with a signed
// contribution, then the vector is L2-normalized. Unigrams and word
// bigrams are hashed so that word order contributes to the vector. The
// result is stable across processes, which keeps retrieval reproducible
// in tests and in deployments without a model backend.
type Local struct {
	dim int
}

// NewLocal creates a Local embedder producing dim-width vectors.
func NewLocal(dim int) (*Local, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &Local{dim: dim}, nil
}

// Dimension reports the vector width.
func (l *Local) Dimension() int { return l.dim }

// Embed embeds a single text.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dim)

	tokens := tokenize(text)
	for _, tok := range tokens {
		l.add(vec, tok)
	}
	// Word bigrams carry local ordering into the vector.
	for i := 0; i+1 < len(tokens); i++ {
		l.add(vec, tokens[i]+" "+tokens[i+1])
	}

	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts in order.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// add hashes one feature into the vector with a signed contribution.
// The low 63 bits pick the bucket, the top bit picks the sign. Sign
// hashing keeps the expected dot product of unrelated texts near zero.
func (l *Local) add(vec []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int((sum & math.MaxInt64) % uint64(l.dim))
	if sum>>63 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
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
