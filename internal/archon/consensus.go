package archon

import "fmt"

// DecisionKind grades how far a remote node has drifted.
type DecisionKind int

const (
	Accept DecisionKind = iota
	Warning
	Reject
)

func (k DecisionKind) String() string {
	switch k {
	case Accept:
		return "accept"
	case Warning:
		return "warning"
	default:
		return "reject"
	}
}

// MarshalText renders the kind by name.
func (k DecisionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Decision is the verdict on one remote state vector.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Reason string       `json:"reason,omitempty"`
}

func short(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// agrees reports whether every consensus field matches. Node id, height and
// timestamp identify the sample, not the state.
func agrees(a, b *StateVector) bool {
	return a.RuntimeVersion == b.RuntimeVersion &&
		a.StateRoot == b.StateRoot &&
		a.InvariantsOK == b.InvariantsOK &&
		a.RuntimeRegistryHash == b.RuntimeRegistryHash &&
		a.SDKCompatibilityHash == b.SDKCompatibilityHash &&
		a.SovereigntySealHash == b.SovereigntySealHash
}

// Evaluate compares a remote vector against the local one. The first
// mismatching field decides.
func Evaluate(local, remote *StateVector) Decision {
	switch {
	case local.IntegrityHash == remote.IntegrityHash, agrees(local, remote):
		return Decision{Kind: Accept}
	case local.RuntimeVersion != remote.RuntimeVersion:
		return Decision{Warning, fmt.Sprintf("runtime version drift: local=%s remote=%s", local.RuntimeVersion, remote.RuntimeVersion)}
	case local.StateRoot != remote.StateRoot:
		return Decision{Warning, fmt.Sprintf("state root divergence: local=%s remote=%s", short(local.StateRoot), short(remote.StateRoot))}
	case local.InvariantsOK != remote.InvariantsOK:
		return Decision{Warning, fmt.Sprintf("invariant status mismatch: local=%t remote=%t", local.InvariantsOK, remote.InvariantsOK)}
	case local.RuntimeRegistryHash != remote.RuntimeRegistryHash:
		return Decision{Reject, "runtime registry hash mismatch: node has different modules"}
	case local.SDKCompatibilityHash != remote.SDKCompatibilityHash:
		return Decision{Warning, "sdk compatibility hash mismatch: potential api drift"}
	case local.SovereigntySealHash != remote.SovereigntySealHash:
		return Decision{Reject, "sovereignty seal hash mismatch"}
	default:
		return Decision{Reject, "state vector mismatch: integrity hash differs"}
	}
}

// Tally counts decisions across remotes.
type Tally struct {
	Accept  int `json:"accept"`
	Warning int `json:"warning"`
	Reject  int `json:"reject"`
}

// Total is the number of evaluated remotes.
func (t Tally) Total() int { return t.Accept + t.Warning + t.Reject }

// EvaluateAll evaluates every remote.
func EvaluateAll(local *StateVector, remotes []*StateVector) Tally {
	var t Tally
	for _, r := range remotes {
		switch Evaluate(local, r).Kind {
		case Accept:
			t.Accept++
		case Warning:
			t.Warning++
		default:
			t.Reject++
		}
	}
	return t
}

// MeetsThreshold reports accept/total >= threshold. An empty set never meets it.
func MeetsThreshold(accept, total int, threshold float64) bool {
	if total == 0 {
		return false
	}
	return float64(accept)/float64(total) >= threshold
}
