package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/nidhogg/demiurge/internal/signing"
)

// DefaultHashDimension is the hash provider's width when none is configured.
const DefaultHashDimension = 256

// HashProvider embeds text offline by hashing each token into a signed
// bucket. Texts sharing words land close together under cosine distance.
type HashProvider struct {
	dim int
}

func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashProvider{dim: dim}
}

func (p *HashProvider) Dimension() int { return p.dim }

func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		s := signing.Seed("demiurge/embed", []byte(tok))
		idx := binary.LittleEndian.Uint32(s[:4]) % uint32(p.dim)
		if s[4]&1 == 0 {
			v[idx]++
		} else {
			v[idx]--
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}
