package embedding

import (
	"context"
	"hash/fnv"
)

// localBackend is a deterministic, dependency-free backend for tests and for
// the "local" configuration type. It hashes byte 3-grams into a fixed-size
// vector; unrelated to any real model, but stable and cosine-meaningful
// enough to exercise CoI/retrieval logic without a network call.
type localBackend struct {
	name string
	dim  int
	seed uint64
}

// NewLocal constructs a deterministic local backend with the given dimension.
func NewLocal(name string, dim int, seed uint64) Backend {
	if dim <= 0 {
		dim = 64
	}
	return &localBackend{name: name, dim: dim, seed: seed}
}

func (l *localBackend) Name() string      { return l.name }
func (l *localBackend) Dimension() int    { return l.dim }
func (l *localBackend) Ping(context.Context) error { return nil }

func (l *localBackend) Embed(_ context.Context, kind Kind, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		raw := l.hashVector(kind, t)
		v, err := Normalize(l.name, raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (l *localBackend) hashVector(kind Kind, s string) []float32 {
	v := make([]float32, l.dim)
	b := []byte(kind.String() + ":" + s)
	if len(b) < 3 {
		addGram(l.seed, b, v)
		return v
	}
	for i := 0; i <= len(b)-3; i++ {
		addGram(l.seed, b[i:i+3], v)
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
