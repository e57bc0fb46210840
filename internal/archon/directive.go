package archon

import (
	"fmt"
	"sort"
	"strings"
)

// Code identifies a directive.
type Code string

const (
	A0UnifyState          Code = "A0"
	A1RepairNode          Code = "A1"
	A2ForceSync           Code = "A2"
	A3RejectNode          Code = "A3"
	A4RegenerateInvariant Code = "A4"
	A5AlignSDK            Code = "A5"
	A6VerifyRuntime       Code = "A6"
	A7ValidateCodec       Code = "A7"
	A8SyncServices        Code = "A8"
	A9EmergencyHalt       Code = "A9"
)

// Lower is more urgent.
var priorities = map[Code]int{
	A9EmergencyHalt:       0,
	A3RejectNode:          1,
	A0UnifyState:          2,
	A6VerifyRuntime:       3,
	A4RegenerateInvariant: 4,
	A2ForceSync:           5,
	A1RepairNode:          6,
	A5AlignSDK:            7,
	A7ValidateCodec:       8,
	A8SyncServices:        9,
}

// Directive is a corrective command. Detail carries the node or reason for
// codes that take one.
type Directive struct {
	Code   Code   `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Priority returns the directive's urgency, 0 first.
func (d Directive) Priority() int {
	if p, ok := priorities[d.Code]; ok {
		return p
	}
	return len(priorities)
}

// Description is a human-readable summary.
func (d Directive) Description() string {
	switch d.Code {
	case A0UnifyState:
		return "Unify all system state"
	case A1RepairNode:
		return "Repair node: " + d.Detail
	case A2ForceSync:
		return "Force sync: " + d.Detail
	case A3RejectNode:
		return "Reject node: " + d.Detail
	case A4RegenerateInvariant:
		return "Regenerate invariants"
	case A5AlignSDK:
		return "Align SDK: " + d.Detail
	case A6VerifyRuntime:
		return "Verify runtime integrity"
	case A7ValidateCodec:
		return "Validate transaction codec"
	case A8SyncServices:
		return "Synchronize service APIs"
	case A9EmergencyHalt:
		return "EMERGENCY HALT: " + d.Detail
	default:
		return fmt.Sprintf("unknown directive %s", d.Code)
	}
}

func (d Directive) String() string { return string(d.Code) + " " + d.Description() }

// IssueA0 maps a consensus verdict to a directive.
func IssueA0(local, remote *StateVector) Directive {
	dec := Evaluate(local, remote)
	switch dec.Kind {
	case Accept:
		return Directive{Code: A0UnifyState}
	case Warning:
		return Directive{Code: A2ForceSync, Detail: dec.Reason}
	default:
		return Directive{Code: A3RejectNode, Detail: dec.Reason}
	}
}

// EvaluateAndIssue derives directives from all remotes, sorted by priority.
// It always returns at least one directive. A local invariant failure
// short-circuits to an emergency halt.
func EvaluateAndIssue(local *StateVector, remotes []*StateVector) []Directive {
	if !local.InvariantsOK {
		return []Directive{{Code: A9EmergencyHalt, Detail: "local invariants failed"}}
	}

	var out []Directive
	t := EvaluateAll(local, remotes)
	total := len(remotes)
	if t.Reject > total/2 {
		out = append(out, Directive{Code: A3RejectNode, Detail: fmt.Sprintf("majority of nodes rejected (%d rejections)", t.Reject)})
	}
	if t.Warning > total/3 {
		out = append(out, Directive{Code: A2ForceSync, Detail: fmt.Sprintf("significant drift detected (%d warnings)", t.Warning)})
	}
	if total > 0 && t.Accept == total {
		out = append(out, Directive{Code: A0UnifyState})
	}
	for _, r := range remotes {
		if local.RuntimeRegistryHash != r.RuntimeRegistryHash {
			out = append(out, Directive{Code: A6VerifyRuntime})
			break
		}
		if local.SDKCompatibilityHash != r.SDKCompatibilityHash {
			out = append(out, Directive{Code: A5AlignSDK, Detail: "sdk compatibility drift detected"})
			break
		}
	}
	if len(out) == 0 {
		out = append(out, minorityDirective(local, remotes, t))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

// minorityDirective covers a tally below every threshold: drifting peers get
// a forced sync, and with none the state is unified.
func minorityDirective(local *StateVector, remotes []*StateVector, t Tally) Directive {
	if t.Warning+t.Reject == 0 {
		return Directive{Code: A0UnifyState}
	}
	var nodes []string
	for _, r := range remotes {
		if Evaluate(local, r).Kind != Accept {
			nodes = append(nodes, r.NodeID)
		}
	}
	return Directive{Code: A2ForceSync, Detail: fmt.Sprintf("minority drift on %s (%d warnings, %d rejections)", strings.Join(nodes, ", "), t.Warning, t.Reject)}
}
