package archon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/signing"
	"go.uber.org/zap"
)

func newNode(t *testing.T) *chain.Node {
	t.Helper()
	kp := signing.KeyFromPhrase("archon test phrase", 0)
	n := chain.NewNode(chain.Config{
		NodeID:         "local",
		DevMode:        true,
		GenesisArchon:  chain.Address(kp.Address()),
		GenesisBalance: chain.CGT(1000),
	}, zap.NewNop())
	if err := n.Genesis(context.Background()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return n
}

type brokenView struct{ *chain.Node }

func (brokenView) VerifyInvariants() error { return errors.New("sum of balances != total supply") }

type recordingAnnouncer struct {
	mu   sync.Mutex
	seen []Directive
}

func (r *recordingAnnouncer) Announce(_ context.Context, d Directive, _ *StateVector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, d)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func TestDiagnosticsStartup(t *testing.T) {
	n := newNode(t)
	d := NewDiagnostics(n, DiagnosticsConfig{
		ServedMethods:   func() []string { return []string{"cgt_getBalance"} },
		RequiredMethods: []string{"cgt_getBalance", "urgeid_get"},
	})
	results := map[string]Outcome{}
	for _, tt := range d.RunStartup() {
		results[tt.ID] = tt.Result
	}
	want := map[string]Outcome{
		"runtime_integrity":    Pass,
		"sdk_compatibility":    Warn,
		"state_consistency":    Pass,
		"network_connectivity": NotApplicable,
	}
	for id, w := range want {
		if results[id] != w {
			t.Errorf("%s: got %s, want %s", id, results[id], w)
		}
	}
	if d.Health() != Warn {
		t.Errorf("health: got %s, want warning", d.Health())
	}
	if got := d.HealthScore(); got <= 0.5 || got >= 1 {
		t.Errorf("health score %v out of expected range", got)
	}
	if len(d.ByCategory(CategorySDK)) != 1 {
		t.Errorf("expected one sdk test")
	}
	if len(d.History(0)) != 4 {
		t.Errorf("history: got %d records, want 4", len(d.History(0)))
	}

	pinned := NewDiagnostics(n, DiagnosticsConfig{ExpectedRegistryHash: "deadbeef"})
	for _, tt := range pinned.RunStartup() {
		if tt.ID == "runtime_integrity" && tt.Result != Fail {
			t.Errorf("pinned registry hash mismatch should fail, got %s", tt.Result)
		}
	}
}

func TestDiagnosticsBlock(t *testing.T) {
	n := newNode(t)
	d := NewDiagnostics(n, DiagnosticsConfig{})
	for _, tt := range d.RunBlock(0) {
		if tt.Result != Pass {
			t.Errorf("%s: got %s (%s)", tt.ID, tt.Result, tt.Message)
		}
	}
	if d.Health() != Pass {
		t.Errorf("health: got %s", d.Health())
	}

	broken := NewDiagnostics(brokenView{n}, DiagnosticsConfig{})
	broken.RunBlock(0)
	if broken.Health() != Fail {
		t.Errorf("broken invariants: health %s, want fail", broken.Health())
	}
}

func TestDaemonInitialize(t *testing.T) {
	n := newNode(t)
	if err := NewDaemon(n, DaemonConfig{}, zap.NewNop()).Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	bad := NewDaemon(n, DaemonConfig{Diagnostics: DiagnosticsConfig{ExpectedRegistryHash: "00"}}, zap.NewNop())
	if err := bad.Initialize(); err == nil || !strings.Contains(err.Error(), "Runtime Module Integrity") {
		t.Fatalf("expected runtime integrity failure, got %v", err)
	}
}

func TestDaemonTickAlone(t *testing.T) {
	n := newNode(t)
	pub := &recordingPublisher{}
	ann := &recordingAnnouncer{}
	d := NewDaemon(n, DaemonConfig{}, zap.NewNop())
	d.SetPublisher(pub)
	d.SetAnnouncer(ann)

	dirs, err := d.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0].Code != A0UnifyState {
		t.Fatalf("got %v, want A0", dirs)
	}
	cur := d.Current()
	if cur == nil || cur.NodeID != "local" || !cur.InvariantsOK || !cur.VerifyIntegrity() {
		t.Fatalf("current vector: %+v", cur)
	}
	if len(d.Journal().Entries()) != 0 {
		t.Error("A0 should not be journaled")
	}
	if s := d.Core().State(); s.Coherence != 1 || s.Stability != 1 || s.NodeParticipation != 1 {
		t.Errorf("core state: %+v", s)
	}

	// A repeated A0 is announced once.
	if _, err := d.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ann.seen) != 1 {
		t.Errorf("announcements: got %d, want 1", len(ann.seen))
	}
	if len(pub.topics) != 2 || pub.topics[0] != TopicDirective {
		t.Errorf("published topics: %v", pub.topics)
	}
	hb := d.RecentHeartbeats(10)
	if len(hb) != 2 || hb[1].Directives[0].Code != A0UnifyState || hb[1].Height != 0 {
		t.Errorf("heartbeats: %+v", hb)
	}
}

func TestDaemonBrokenInvariantsHalts(t *testing.T) {
	n := newNode(t)
	ann := &recordingAnnouncer{}
	d := NewDaemon(brokenView{n}, DaemonConfig{}, zap.NewNop())
	d.SetAnnouncer(ann)

	dirs, err := d.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0].Code != A9EmergencyHalt {
		t.Fatalf("got %v, want A9", dirs)
	}
	if len(ann.seen) != 1 || ann.seen[0].Code != A9EmergencyHalt {
		t.Errorf("announced %v", ann.seen)
	}
	entries := d.Journal().Entries()
	if len(entries) != 1 || entries[0].ArtifactID != "A9" || !d.Journal().VerifyIntegrity() {
		t.Errorf("journal: %+v", entries)
	}
	if d.Core().IsAwakened() {
		t.Error("a halted archon should not be awakened")
	}
}

func TestDaemonObserveRemote(t *testing.T) {
	n := newNode(t)
	d := NewDaemon(n, DaemonConfig{MaxRemotes: 2}, zap.NewNop())
	local, err := d.BuildStateVector()
	if err != nil {
		t.Fatal(err)
	}

	peer := remoteWith(local, "peer-a", func(v *StateVector) {})
	dir, err := d.ObserveRemote(peer)
	if err != nil || dir.Code != A0UnifyState {
		t.Fatalf("agreeing peer: %v %v", dir, err)
	}

	forged := *peer
	forged.StateRoot = "00"
	if _, err := d.ObserveRemote(&forged); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("forged vector: got %v, want ErrIntegrity", err)
	}

	fork := remoteWith(local, "peer-b", func(v *StateVector) { v.StateRoot = strings.Repeat("f", 64); v.Timestamp++ })
	dir, err = d.ObserveRemote(fork)
	if err != nil || dir.Code != A2ForceSync {
		t.Fatalf("forked peer: %v %v", dir, err)
	}

	// Capacity two: the oldest peer makes room.
	late := remoteWith(local, "peer-c", func(v *StateVector) { v.Timestamp += 10 })
	if _, err := d.ObserveRemote(late); err != nil {
		t.Fatal(err)
	}
	ids := []string{}
	for _, r := range d.Remotes() {
		ids = append(ids, r.NodeID)
	}
	if strings.Join(ids, ",") != "peer-b,peer-c" {
		t.Errorf("remotes: %v", ids)
	}

	dirs, err := d.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if codes(dirs) != "A2" {
		t.Errorf("tick with one forked peer of two: got %s, want A2", codes(dirs))
	}
	if d.PeerCount() != 2 {
		t.Errorf("peer count: %d", d.PeerCount())
	}
}

func TestHeartbeat(t *testing.T) {
	n := newNode(t)
	d := NewDaemon(n, DaemonConfig{HeartbeatWindow: 2}, zap.NewNop())
	local, err := d.BuildStateVector()
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Heartbeat(context.Background(), local, nil); got.Code != A0UnifyState {
		t.Errorf("no remote: got %s", got.Code)
	}
	seal := remoteWith(local, "x", func(v *StateVector) { v.SovereigntySealHash = "other" })
	if got := d.Heartbeat(context.Background(), local, seal); got.Code != A3RejectNode {
		t.Errorf("seal mismatch: got %s", got.Code)
	}
	d.Heartbeat(context.Background(), local, nil)
	if hb := d.RecentHeartbeats(0); len(hb) != 2 || hb[0].Directives[0].Code != A3RejectNode {
		t.Errorf("window should keep the last two heartbeats: %+v", hb)
	}
}

func TestDaemonRemembersDirectives(t *testing.T) {
	n := newNode(t)
	d := NewDaemon(brokenView{n}, DaemonConfig{Entropy: func() float64 { return 0.9 }}, zap.NewNop())
	palace := NewMemoryPalace(10, zap.NewNop())
	d.SetPalace(palace)

	if _, err := d.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	chambers := palace.Chambers()
	if len(chambers) != 1 || chambers[0].ID != ChamberDirectives || chambers[0].Memories != 1 {
		t.Fatalf("chambers = %+v", chambers)
	}
	// A9 is the most urgent directive and is remembered at full importance.
	if chambers[0].Importance != 1 {
		t.Errorf("importance = %v, want 1", chambers[0].Importance)
	}

	s := d.Sample()
	if s.Entropy != 0.9 || s.Invariants["ledger"] || !s.Invariants["journal"] {
		t.Fatalf("sample = %+v", s)
	}

	w := NewAnomalyWatcher(0, d.Sample, zap.NewNop())
	w.SetPalace(palace)
	found := w.Watch(d.Sample())
	if len(found) < 2 {
		t.Fatalf("anomalies = %+v", found)
	}
	for _, c := range palace.Chambers() {
		if c.ID == ChamberAnomalies && c.Memories != len(found) {
			t.Errorf("anomalies chamber holds %d, want %d", c.Memories, len(found))
		}
	}
	if d.Eligible() != 1 {
		t.Errorf("eligible = %d with no peers", d.Eligible())
	}
}

func TestDaemonTickMinorityDrift(t *testing.T) {
	n := newNode(t)
	d := NewDaemon(n, DaemonConfig{}, zap.NewNop())
	local, err := d.BuildStateVector()
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"peer-a", "peer-b"} {
		if _, err := d.ObserveRemote(remoteWith(local, id, func(v *StateVector) {})); err != nil {
			t.Fatal(err)
		}
	}
	drifted := remoteWith(local, "peer-c", func(v *StateVector) { v.StateRoot = strings.Repeat("de", 32) })
	if _, err := d.ObserveRemote(drifted); err != nil {
		t.Fatal(err)
	}

	dirs, err := d.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if codes(dirs) != "A2" || !strings.Contains(dirs[0].Detail, "peer-c") {
		t.Fatalf("got %v, want A2 naming peer-c", dirs)
	}
	hb := d.RecentHeartbeats(1)
	if len(hb) != 1 || hb[0].Remotes != 3 || hb[0].Directives[0].Code != A2ForceSync {
		t.Errorf("heartbeat = %+v", hb)
	}
	if s := d.Core().State(); s.NodeParticipation != 4 {
		t.Errorf("participation = %d, want 4", s.NodeParticipation)
	}
}

func TestDaemonJournalsDirectiveChanges(t *testing.T) {
	n := newNode(t)
	d := NewDaemon(n, DaemonConfig{HeartbeatWindow: 8, JournalSize: 4}, zap.NewNop())
	local, err := d.BuildStateVector()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ObserveRemote(remoteWith(local, "peer-c", func(v *StateVector) { v.StateRoot = "bb" })); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for range 200 {
		if _, err := d.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := d.Journal().Appended(); got != 1 {
		t.Errorf("an unchanged directive set was journaled %d times", got)
	}
	if got := len(d.RecentHeartbeats(0)); got != 8 {
		t.Errorf("heartbeats = %d, want 8", got)
	}

	foreign := remoteWith(local, "peer-d", func(v *StateVector) { v.RuntimeRegistryHash = "other" })
	if _, err := d.ObserveRemote(foreign); err != nil {
		t.Fatal(err)
	}
	dirs, err := d.Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if codes(dirs) != "A6,A2" {
		t.Fatalf("got %s, want A6,A2", codes(dirs))
	}
	j := d.Journal()
	if j.Appended() != 3 || j.Len() != 3 || !j.VerifyIntegrity() {
		t.Errorf("journal: appended %d, retained %d, verified %t", j.Appended(), j.Len(), j.VerifyIntegrity())
	}
}

func TestDaemonElectorate(t *testing.T) {
	n := newNode(t)
	d := NewDaemon(n, DaemonConfig{}, zap.NewNop())
	votes := d.Votes()
	genesis := signing.KeyFromPhrase("archon test phrase", 0)
	stranger := signing.KeyFromPhrase("stranger phrase", 0)

	signed := func(kp *signing.KeyPair, c Choice) Vote {
		return Vote{
			Voter:      signing.EncodeHex(kp.PublicKey()),
			ProposalID: "ascend",
			Choice:     c,
			Signature:  kp.SignMessageHex(VoteMessage("ascend", c)),
		}
	}

	if err := votes.Submit(signed(stranger, Approve)); !errors.Is(err, ErrInvalidVote) {
		t.Errorf("stranger key: %v", err)
	}
	if err := votes.Submit(Vote{Voter: "local", ProposalID: "ascend", Choice: Approve}); !errors.Is(err, ErrInvalidVote) {
		t.Errorf("unsigned local vote: %v", err)
	}
	if err := votes.Submit(Vote{Voter: "peer-x", ProposalID: "ascend", Choice: Approve}); !errors.Is(err, ErrInvalidVote) {
		t.Errorf("unknown peer: %v", err)
	}

	if err := votes.Submit(signed(genesis, Approve)); err != nil {
		t.Fatalf("genesis vote: %v", err)
	}
	cast := votes.Votes("ascend")
	if len(cast) != 1 || cast[0].Voter != "local" || cast[0].Key != signing.EncodeHex(genesis.PublicKey()) {
		t.Fatalf("votes = %+v", cast)
	}

	local, err := d.BuildStateVector()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.ObserveRemote(remoteWith(local, "peer-x", func(v *StateVector) {})); err != nil {
		t.Fatal(err)
	}
	if err := votes.Submit(Vote{Voter: "peer-x", ProposalID: "ascend", Choice: Oppose}); err != nil {
		t.Fatalf("known peer: %v", err)
	}
	// Re-voting replaces rather than adds.
	if err := votes.Submit(signed(genesis, Approve)); err != nil {
		t.Fatal(err)
	}
	r := d.Proposal("ascend")
	if r.Participation != 1 || r.Approve != 1 || r.Reject != 1 || r.Approved {
		t.Errorf("result = %+v", r)
	}
	if got := strings.Join(d.Members(), ","); got != "local,peer-x" {
		t.Errorf("members = %s", got)
	}
}
