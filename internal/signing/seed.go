package signing

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Seed hashes a domain tag and length-prefixed parts into 32 bytes.
// Identical inputs always yield the same seed; different domains never collide
// on the same parts.
func Seed(domain string, parts ...[]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	var lenBuf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Stream expands a seed into n deterministic bytes using sha256(seed || counter).
// It returns an empty slice when n <= 0.
func Stream(seed [32]byte, n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, 0, n+sha256.Size)
	var ctr [8]byte
	for i := uint64(0); len(out) < n; i++ {
		binary.LittleEndian.PutUint64(ctr[:], i)
		h := sha256.New()
		h.Write(seed[:])
		h.Write(ctr[:])
		out = h.Sum(out)
	}
	return out[:n]
}

// KeyFromPhrase derives the index-th key pair of a phrase.
func KeyFromPhrase(phrase string, index uint32) *KeyPair {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	normalized := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	return KeyPairFromSeed(Seed("demiurge/key", []byte(normalized), idx[:]))
}

// NewID returns prefix_ followed by the upper-hex first 16 bytes of sha256(material).
func NewID(prefix string, material ...[]byte) string {
	h := sha256.New()
	for _, m := range material {
		h.Write(m)
	}
	sum := h.Sum(nil)
	return prefix + "_" + strings.ToUpper(hex.EncodeToString(sum[:16]))
}

// Unit maps (seed, label) to a float in [0,1).
func Unit(seed [32]byte, label string) float64 {
	s := Seed("demiurge/unit", seed[:], []byte(label))
	v := binary.LittleEndian.Uint64(s[:8]) >> 11
	return float64(v) / float64(uint64(1)<<53)
}
