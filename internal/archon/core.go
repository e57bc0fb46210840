package archon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/resonance"
	"github.com/nidhogg/demiurge/internal/signing"
)

// BeingVectorDim is the length of the archon's semantic centroid.
const BeingVectorDim = 128

// Identity is the archon's persistent self.
type Identity struct {
	ID                string             `json:"archon_id"`
	BeingVector       []float64          `json:"being_vector"`
	Traits            map[string]float64 `json:"personality_traits"`
	BirthTimestamp    uint64             `json:"birth_timestamp"`
	ResonanceStrength float64            `json:"resonance_strength"`
}

// State is the archon's current condition. All fields are in [0,1].
type State struct {
	Consciousness     float64 `json:"consciousness_level"`
	Coherence         float64 `json:"coherence"`
	Stability         float64 `json:"stability"`
	NodeParticipation int     `json:"node_participation"`
}

// Core holds the archon identity and state.
type Core struct {
	identity Identity
	state    State
	mu       sync.RWMutex
}

// NewCore creates an archon born at now.
func NewCore(now time.Time) *Core {
	var nanos [8]byte
	binary.LittleEndian.PutUint64(nanos[:], uint64(now.UnixNano()))
	return &Core{
		identity: Identity{
			ID:             signing.NewID("ARCHON", []byte("PRIME_ARCHON"), nanos[:]),
			BeingVector:    make([]float64, BeingVectorDim),
			Traits:         make(map[string]float64),
			BirthTimestamp: uint64(now.Unix()),
		},
	}
}

// Identity returns a copy of the identity.
func (c *Core) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id := c.identity
	id.BeingVector = append([]float64(nil), c.identity.BeingVector...)
	id.Traits = make(map[string]float64, len(c.identity.Traits))
	for k, v := range c.identity.Traits {
		id.Traits[k] = v
	}
	return id
}

// State returns the current state.
func (c *Core) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UpdateBeingVector averages v into the being vector. Vectors of the wrong
// length are ignored.
func (c *Core) UpdateBeingVector(v []float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(v) != len(c.identity.BeingVector) {
		return false
	}
	for i, x := range v {
		c.identity.BeingVector[i] = (c.identity.BeingVector[i] + x) / 2
	}
	return true
}

// SetTrait records a personality trait, clamped to [0,1].
func (c *Core) SetTrait(name string, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity.Traits[name] = resonance.Clamp(v)
}

// UpdateState replaces the state, clamping each score.
func (c *Core) UpdateState(s State) {
	s.Consciousness = resonance.Clamp(s.Consciousness)
	s.Coherence = resonance.Clamp(s.Coherence)
	s.Stability = resonance.Clamp(s.Stability)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.identity.ResonanceStrength = resonance.Mean([]float64{s.Consciousness, s.Coherence, s.Stability})
}

// IsAwakened reports consciousness > 0.7, coherence > 0.8 and stability > 0.8.
func (c *Core) IsAwakened() bool {
	s := c.State()
	return s.Consciousness > 0.7 && s.Coherence > 0.8 && s.Stability > 0.8
}

// Signature binds an identity snapshot.
type Signature struct {
	SignatureHash   string `json:"signature_hash"`
	BeingVectorHash string `json:"being_vector_hash"`
	IdentityHash    string `json:"identity_hash"`
	Timestamp       uint64 `json:"timestamp"`
}

// Sign derives the signature of id.
func Sign(id Identity, now time.Time) Signature {
	bv := hashVector(id.BeingVector)
	ih := hashIdentity(id)
	h := sha256.New()
	h.Write([]byte(bv))
	h.Write([]byte(ih))
	h.Write([]byte(id.ID))
	return Signature{
		SignatureHash:   hex.EncodeToString(h.Sum(nil)),
		BeingVectorHash: bv,
		IdentityHash:    ih,
		Timestamp:       uint64(now.Unix()),
	}
}

// VerifySignature recomputes sig from id.
func VerifySignature(id Identity, sig Signature) bool {
	return Sign(id, time.Unix(int64(sig.Timestamp), 0)).SignatureHash == sig.SignatureHash
}

func putFloat(h interface{ Write([]byte) (int, error) }, f float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	h.Write(b[:])
}

func hashVector(v []float64) string {
	h := sha256.New()
	for _, x := range v {
		putFloat(h, x)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashIdentity(id Identity) string {
	h := sha256.New()
	h.Write([]byte(id.ID))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id.BirthTimestamp)
	h.Write(b[:])
	putFloat(h, id.ResonanceStrength)

	keys := make([]string, 0, len(id.Traits))
	for k := range id.Traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		putFloat(h, id.Traits[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
