package archon

import (
	"strings"
	"testing"
)

func vector(node, root string) *StateVector {
	return NewStateVector("demiurge-runtime/1", root, node, true, 7, 1700000000, "reg", "sdk", "seal")
}

func TestStateVectorIntegrity(t *testing.T) {
	v := vector("n1", "aa")
	if !v.VerifyIntegrity() {
		t.Fatal("fresh vector should verify")
	}
	v.BlockHeight++
	if v.VerifyIntegrity() {
		t.Error("tampered vector should not verify")
	}
	v.IntegrityHash = ""
	if v.VerifyIntegrity() {
		t.Error("empty integrity hash should not verify")
	}
	if HashStrings([]string{"ab", "c"}) == HashStrings([]string{"a", "bc"}) {
		t.Error("HashStrings should separate items")
	}
}

func TestEvaluate(t *testing.T) {
	local := vector("n1", "aa")

	tests := []struct {
		name   string
		mutate func(v *StateVector)
		want   DecisionKind
		reason string
	}{
		{"identical", func(v *StateVector) {}, Accept, ""},
		{"runtime", func(v *StateVector) { v.RuntimeVersion = "demiurge-runtime/2" }, Warning, "runtime version drift"},
		{"root", func(v *StateVector) { v.StateRoot = "bb" }, Warning, "state root divergence"},
		{"invariants", func(v *StateVector) { v.InvariantsOK = false }, Warning, "invariant status mismatch"},
		{"registry", func(v *StateVector) { v.RuntimeRegistryHash = "other" }, Reject, "runtime registry"},
		{"sdk", func(v *StateVector) { v.SDKCompatibilityHash = "other" }, Warning, "sdk compatibility"},
		{"seal", func(v *StateVector) { v.SovereigntySealHash = "other" }, Reject, "sovereignty seal"},
		{"other node same state", func(v *StateVector) { v.NodeID = "n2"; v.Timestamp++ }, Accept, ""},
		{"root before registry", func(v *StateVector) { v.StateRoot = "bb"; v.RuntimeRegistryHash = "x" }, Warning, "state root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *local
			tt.mutate(&r)
			r.IntegrityHash = r.computeIntegrity()
			got := Evaluate(local, &r)
			if got.Kind != tt.want {
				t.Fatalf("kind: got %s, want %s (%s)", got.Kind, tt.want, got.Reason)
			}
			if !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("reason %q does not mention %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestMeetsThreshold(t *testing.T) {
	if MeetsThreshold(0, 0, 0.5) {
		t.Error("empty set should never meet the threshold")
	}
	if !MeetsThreshold(2, 3, 0.66) {
		t.Error("2/3 should meet 0.66")
	}
	if MeetsThreshold(1, 3, 0.5) {
		t.Error("1/3 should not meet 0.5")
	}
}

func remoteWith(local *StateVector, node string, mutate func(v *StateVector)) *StateVector {
	r := *local
	r.NodeID = node
	mutate(&r)
	r.IntegrityHash = r.computeIntegrity()
	return &r
}

func codes(ds []Directive) string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d.Code)
	}
	return strings.Join(out, ",")
}

func TestEvaluateAndIssue(t *testing.T) {
	local := vector("n1", "aa")
	drift := func(v *StateVector) { v.StateRoot = "bb" }
	foreign := func(v *StateVector) { v.RuntimeRegistryHash = "other" }
	sdk := func(v *StateVector) { v.SDKCompatibilityHash = "other" }

	tests := []struct {
		name    string
		remotes []*StateVector
		want    string
	}{
		{"no remotes", nil, "A0"},
		{"all accept", []*StateVector{local, local}, "A0"},
		{"majority reject", []*StateVector{
			remoteWith(local, "a", foreign),
			remoteWith(local, "b", foreign),
			local,
		}, "A3,A6"},
		{"drift", []*StateVector{
			remoteWith(local, "a", drift),
			local,
		}, "A2"},
		{"sdk drift", []*StateVector{
			remoteWith(local, "a", sdk),
			local,
			local,
		}, "A5"},
		{"minority drift", []*StateVector{
			remoteWith(local, "a", func(v *StateVector) {}),
			remoteWith(local, "b", func(v *StateVector) {}),
			remoteWith(local, "c", drift),
		}, "A2"},
		{"minority seal reject", []*StateVector{
			remoteWith(local, "a", func(v *StateVector) {}),
			remoteWith(local, "b", func(v *StateVector) {}),
			remoteWith(local, "c", func(v *StateVector) { v.SovereigntySealHash = "other" }),
		}, "A2"},
		{"one drift among four", []*StateVector{
			local, local, local,
			remoteWith(local, "d", drift),
		}, "A2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateAndIssue(local, tt.remotes)
			if len(got) == 0 {
				t.Fatal("no directive issued")
			}
			if codes(got) != tt.want {
				t.Errorf("got %q, want %q", codes(got), tt.want)
			}
		})
	}

	minority := EvaluateAndIssue(local, tests[5].remotes)
	if !strings.HasPrefix(minority[0].Detail, "minority drift on c (1 warnings") {
		t.Errorf("minority detail = %q", minority[0].Detail)
	}

	broken := *local
	broken.InvariantsOK = false
	got := EvaluateAndIssue(&broken, []*StateVector{local})
	if len(got) != 1 || got[0].Code != A9EmergencyHalt {
		t.Errorf("broken invariants: got %v, want A9", got)
	}
}

func TestIssueA0AndDescriptions(t *testing.T) {
	local := vector("n1", "aa")
	if d := IssueA0(local, local); d.Code != A0UnifyState {
		t.Errorf("identical: got %s", d.Code)
	}
	if d := IssueA0(local, remoteWith(local, "x", func(v *StateVector) { v.StateRoot = "cc" })); d.Code != A2ForceSync {
		t.Errorf("drift: got %s", d.Code)
	}
	if d := IssueA0(local, remoteWith(local, "x", func(v *StateVector) { v.SovereigntySealHash = "z" })); d.Code != A3RejectNode {
		t.Errorf("seal: got %s", d.Code)
	}

	d := Directive{Code: A9EmergencyHalt, Detail: "boom"}
	if d.Priority() != 0 || d.Description() != "EMERGENCY HALT: boom" {
		t.Errorf("A9: priority %d, description %q", d.Priority(), d.Description())
	}
	if (Directive{Code: "ZZ"}).Priority() <= (Directive{Code: A8SyncServices}).Priority() {
		t.Error("unknown codes should sort last")
	}
}
