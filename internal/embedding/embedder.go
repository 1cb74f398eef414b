// Package embedding converts text into fixed-dimension, unit-norm
// vectors for the vector index. Unavailability is a first-class
// outcome rather than a propagated error: callers switch to keyword
// fallback when they see it.
package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
)

// maxInputChars is the hard cap applied before tokenization; longer
// input is truncated from the right.
const maxInputChars = 8192

// ErrUnavailable is returned for a per-call embedding failure, or
// permanently once Embedder.Embed has reported it once for an
// implementation whose init is a one-shot operation.
var ErrUnavailable = errors.New("embedder: unavailable")

// Embedder turns text into a unit-norm vector of a fixed dimension.
// Unavailable is a first-class outcome (ErrUnavailable), not a general
// error: callers use it to decide whether to fall back to keyword
// similarity.
type Embedder interface {
	// Embed returns a unit-norm embedding, or ErrUnavailable. Input
	// with nothing to hash (such as empty text) yields the all-zero
	// vector, which has no direction to normalize.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the fixed embedding width.
	Dimension() int
	// Name identifies the embedding model for logs and diagnostics.
	Name() string
}

func truncate(text string) string {
	if len(text) <= maxInputChars {
		return text
	}
	return text[:maxInputChars]
}

// normalize returns v scaled to unit L2 norm. A zero vector is
// returned unchanged (norm 0 has no direction).
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// deterministicEmbedder hashes byte trigrams into a fixed-width
// vector and L2-normalizes the result. It requires no external model
// and is used whenever no HTTP embedding endpoint is configured, and
// in tests.
type deterministicEmbedder struct {
	dim  int
	seed uint64
}

// NewDeterministic constructs a deterministic, always-available
// embedder of the given dimension.
func NewDeterministic(dim int) Embedder {
	if dim <= 0 {
		dim = 384
	}
	return &deterministicEmbedder{dim: dim, seed: 0xc0ffee}
}

func (d *deterministicEmbedder) Name() string   { return "deterministic-trigram" }
func (d *deterministicEmbedder) Dimension() int { return d.dim }

func (d *deterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = truncate(text)
	v := make([]float32, d.dim)
	b := []byte(text)
	if len(b) == 0 {
		return v, nil
	}
	if len(b) < 3 {
		d.add(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			d.add(b[i:i+3], v)
		}
	}
	return normalize(v), nil
}

func (d *deterministicEmbedder) add(gram []byte, v []float32) {
	h := fnv.New64a()
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(d.seed >> (8 * i))
	}
	_, _ = h.Write(tmp[:])
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
