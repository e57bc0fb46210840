// Package archon implements the node's self-audit layer: state vectors,
// consistency verdicts between nodes, directives and the managers that feed
// on them.
package archon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// StateVector is a node's canonical per-block heartbeat.
type StateVector struct {
	RuntimeVersion       string `json:"runtime_version"`
	StateRoot            string `json:"state_root"`
	NodeID               string `json:"node_id"`
	InvariantsOK         bool   `json:"invariants_ok"`
	IntegrityHash        string `json:"integrity_hash"`
	BlockHeight          uint64 `json:"block_height"`
	Timestamp            uint64 `json:"timestamp"`
	RuntimeRegistryHash  string `json:"runtime_registry_hash"`
	SDKCompatibilityHash string `json:"sdk_compatibility_hash"`
	SovereigntySealHash  string `json:"sovereignty_seal_hash"`
}

// NewStateVector fills in the integrity hash.
func NewStateVector(runtimeVersion, stateRoot, nodeID string, invariantsOK bool, height, timestamp uint64, registryHash, sdkHash, sealHash string) *StateVector {
	v := &StateVector{
		RuntimeVersion:       runtimeVersion,
		StateRoot:            stateRoot,
		NodeID:               nodeID,
		InvariantsOK:         invariantsOK,
		BlockHeight:          height,
		Timestamp:            timestamp,
		RuntimeRegistryHash:  registryHash,
		SDKCompatibilityHash: sdkHash,
		SovereigntySealHash:  sealHash,
	}
	v.IntegrityHash = v.computeIntegrity()
	return v
}

func (v *StateVector) computeIntegrity() string {
	h := sha256.New()
	h.Write([]byte(v.RuntimeVersion))
	h.Write([]byte(v.StateRoot))
	h.Write([]byte(v.NodeID))
	h.Write([]byte(strconv.FormatBool(v.InvariantsOK)))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v.BlockHeight)
	h.Write(b[:])
	binary.LittleEndian.PutUint64(b[:], v.Timestamp)
	h.Write(b[:])
	h.Write([]byte(v.RuntimeRegistryHash))
	h.Write([]byte(v.SDKCompatibilityHash))
	h.Write([]byte(v.SovereigntySealHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyIntegrity recomputes the integrity hash.
func (v *StateVector) VerifyIntegrity() bool {
	return v.IntegrityHash != "" && v.IntegrityHash == v.computeIntegrity()
}

// HashStrings is sha256 over NUL-separated items, used for registry and SDK
// fingerprints.
func HashStrings(items []string) string {
	h := sha256.New()
	for _, s := range items {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
