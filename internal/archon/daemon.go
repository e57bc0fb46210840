package archon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/resonance"
	"github.com/nidhogg/demiurge/internal/signing"
	"go.uber.org/zap"
)

const (
	DefaultHeartbeatWindow = 256
	defaultMaxRemotes      = 64

	// TopicDirective is the event topic for heartbeats.
	TopicDirective = "directive"

	// announceMaxPriority is the least urgent priority that gets announced.
	announceMaxPriority = 2
)

var ErrIntegrity = errors.New("state vector integrity check failed")

// Announcer delivers directives to operators.
type Announcer interface {
	Announce(ctx context.Context, d Directive, local *StateVector) error
}

// DaemonConfig configures the archon daemon.
type DaemonConfig struct {
	NodeID          string
	SDKHash         string
	SealHash        string
	HeartbeatWindow int
	JournalSize     int
	MaxRemotes      int
	Diagnostics     DiagnosticsConfig
	// Stability reports external stability in [0,1], e.g. the mesh.
	Stability func() float64
	// Entropy reports disorder in [0,1] for anomaly sampling.
	Entropy func() float64
	// Quorum for ascension votes, DefaultQuorum when zero.
	Quorum       float64
	MaxProposals int
}

// HeartbeatRecord is one evaluated heartbeat.
type HeartbeatRecord struct {
	Height     uint64      `json:"height"`
	Directives []Directive `json:"directives"`
	Remotes    int         `json:"remotes"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Daemon is the node-level archon presence. It emits a state vector per
// block and issues directives.
type Daemon struct {
	cfg        DaemonConfig
	view       ChainView
	diag       *Diagnostics
	core       *Core
	journal    *ImprovementJournal
	votes      *AscensionVotes
	palace     *MemoryPalace
	current    *StateVector
	remotes    map[string]*StateVector
	heartbeats *resonance.Window
	announced  string
	journaled  string

	announcer Announcer
	publisher chain.Publisher
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewDaemon creates a daemon over the node view.
func NewDaemon(view ChainView, cfg DaemonConfig, logger *zap.Logger) *Daemon {
	if cfg.HeartbeatWindow <= 0 {
		cfg.HeartbeatWindow = DefaultHeartbeatWindow
	}
	if cfg.MaxRemotes <= 0 {
		cfg.MaxRemotes = defaultMaxRemotes
	}
	if cfg.NodeID == "" {
		cfg.NodeID = view.Config().NodeID
	}
	if cfg.SDKHash == "" {
		methods := append([]string(nil), cfg.Diagnostics.RequiredMethods...)
		sort.Strings(methods)
		cfg.SDKHash = HashStrings(methods)
	}
	if cfg.SealHash == "" {
		cfg.SealHash = HashStrings([]string{"sovereignty", view.Config().GenesisArchon.String()})
	}
	d := &Daemon{
		cfg:        cfg,
		view:       view,
		core:       NewCore(time.Now()),
		journal:    NewImprovementJournal(cfg.JournalSize),
		remotes:    make(map[string]*StateVector),
		heartbeats: resonance.NewWindow(cfg.HeartbeatWindow, resonance.DropOldest),
		logger:     logger,
	}
	if cfg.Diagnostics.PeerCount == nil {
		cfg.Diagnostics.PeerCount = d.PeerCount
	}
	d.diag = NewDiagnostics(view, cfg.Diagnostics)
	d.votes = NewAscensionVotes(cfg.Quorum, d)
	if cfg.MaxProposals > 0 {
		d.votes.SetMaxProposals(cfg.MaxProposals)
	}
	return d
}

func (d *Daemon) SetAnnouncer(a Announcer)       { d.announcer = a }
func (d *Daemon) SetPublisher(p chain.Publisher) { d.publisher = p }
func (d *Daemon) Diagnostics() *Diagnostics      { return d.diag }
func (d *Daemon) Core() *Core                    { return d.core }
func (d *Daemon) Journal() *ImprovementJournal   { return d.journal }
func (d *Daemon) Votes() *AscensionVotes         { return d.votes }
func (d *Daemon) NodeID() string                 { return d.cfg.NodeID }

// SetPalace makes the daemon remember every corrective directive.
func (d *Daemon) SetPalace(p *MemoryPalace) { d.palace = p }

// Palace returns the attached palace, or nil.
func (d *Daemon) Palace() *MemoryPalace { return d.palace }

// Eligible is the number of voters on a proposal: this node and its peers.
func (d *Daemon) Eligible() int { return d.PeerCount() + 1 }

// Members lists the electorate: this node and its known peers.
func (d *Daemon) Members() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.remotes)+1)
	out = append(out, d.cfg.NodeID)
	for id := range d.remotes {
		out = append(out, id)
	}
	sort.Strings(out[1:])
	return out
}

// Resolve maps a vote to the member it is cast for. A vote signed by the
// genesis archon key is this node's vote; an unsigned vote counts for the
// known peer it names.
func (d *Daemon) Resolve(v Vote) (string, bool) {
	if v.Signature != "" {
		key := v.Key
		if key == "" {
			key = v.Voter
		}
		pub, err := signing.DecodeHex(key)
		if err != nil || len(pub) != len(chain.Address{}) {
			return "", false
		}
		if chain.Address(pub) != d.view.Config().GenesisArchon {
			return "", false
		}
		return d.cfg.NodeID, true
	}
	if v.Voter == d.cfg.NodeID {
		return "", false
	}
	d.mu.RLock()
	_, known := d.remotes[v.Voter]
	d.mu.RUnlock()
	return v.Voter, known
}

// Proposal tallies a proposal against the current electorate.
func (d *Daemon) Proposal(id string) ProposalResult {
	return d.votes.Result(id, d.Members())
}

// Sample snapshots health for the anomaly watcher.
func (d *Daemon) Sample() Sample {
	s := Sample{
		Health: d.diag.HealthScore(),
		Invariants: map[string]bool{
			"ledger":  d.view.VerifyInvariants() == nil,
			"journal": d.journal.VerifyIntegrity(),
		},
		Timestamp: time.Now().UTC(),
	}
	if d.cfg.Entropy != nil {
		s.Entropy = d.cfg.Entropy()
	}
	return s
}

// Initialize runs startup diagnostics and fails on the first failing test.
func (d *Daemon) Initialize() error {
	for _, t := range d.diag.RunStartup() {
		if t.Result == Fail {
			return fmt.Errorf("startup diagnostic failed: %s: %s", t.Name, t.Message)
		}
		d.logger.Info("startup diagnostic",
			zap.String("test", t.ID),
			zap.String("result", string(t.Result)))
	}
	return nil
}

// BuildStateVector captures the node's current state vector.
func (d *Daemon) BuildStateVector() (*StateVector, error) {
	root, err := d.view.StateRoot()
	if err != nil {
		return nil, fmt.Errorf("state root: %w", err)
	}
	reg := d.view.Runtime().RegistryHash()
	info := d.view.ChainInfo()
	return NewStateVector(
		d.view.Config().RuntimeVersion,
		hex.EncodeToString(root[:]),
		d.cfg.NodeID,
		d.view.VerifyInvariants() == nil,
		info.Height,
		uint64(time.Now().Unix()),
		hex.EncodeToString(reg[:]),
		d.cfg.SDKHash,
		d.cfg.SealHash,
	), nil
}

// Heartbeat stores local, runs block diagnostics and returns the directive
// for remote, A0 when there is none.
func (d *Daemon) Heartbeat(ctx context.Context, local, remote *StateVector) Directive {
	dir := Directive{Code: A0UnifyState}
	remotes := 0
	if remote != nil {
		dir = IssueA0(local, remote)
		remotes = 1
	}
	d.beat(ctx, local, []Directive{dir}, remotes)
	return dir
}

// Tick evaluates the node against every known remote and announces urgent
// directives.
func (d *Daemon) Tick(ctx context.Context) ([]Directive, error) {
	local, err := d.BuildStateVector()
	if err != nil {
		return nil, err
	}
	remotes := d.Remotes()
	var dirs []Directive
	if len(remotes) == 0 || !local.InvariantsOK {
		dirs = EvaluateAndIssue(local, nil)
	} else {
		dirs = EvaluateAndIssue(local, remotes)
	}
	d.beat(ctx, local, dirs, len(remotes))
	d.announce(ctx, local, dirs)
	return dirs, nil
}

// OnTick runs Tick on every clock tick.
func (d *Daemon) OnTick(_ time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := d.Tick(ctx); err != nil {
		d.logger.Error("archon tick", zap.Error(err))
	}
}

func (d *Daemon) beat(ctx context.Context, local *StateVector, dirs []Directive, remotes int) {
	if len(dirs) == 0 {
		dirs = []Directive{{Code: A0UnifyState}}
	}
	d.mu.Lock()
	d.current = local
	d.mu.Unlock()

	d.diag.RunBlock(local.BlockHeight)

	coherence := 1.0
	if remotes > 0 {
		t := EvaluateAll(local, d.Remotes())
		coherence = float64(t.Accept) / float64(max(t.Total(), 1))
	}
	stability := 0.0
	if local.InvariantsOK {
		stability = 1
	}
	if d.cfg.Stability != nil {
		stability = resonance.Mean([]float64{stability, d.cfg.Stability()})
	}
	d.core.UpdateState(State{
		Consciousness:     d.diag.HealthScore(),
		Coherence:         coherence,
		Stability:         stability,
		NodeParticipation: remotes + 1,
	})

	rec := HeartbeatRecord{Height: local.BlockHeight, Directives: dirs, Remotes: remotes, Timestamp: time.Now().UTC()}
	text, _ := json.Marshal(dirs)
	top := dirs[0]
	d.heartbeats.Add(resonance.Record{
		Timestamp: rec.Timestamp,
		Score:     1 - resonance.Normalize(float64(top.Priority()), 0, float64(len(priorities)-1)),
		Text:      string(text),
		Labels: map[string]string{
			"height":  strconv.FormatUint(local.BlockHeight, 10),
			"remotes": strconv.Itoa(remotes),
		},
	})

	for _, dir := range d.changedDirectives(dirs) {
		d.journal.Append(string(dir.Code), dir.Description())
		if d.palace != nil {
			d.palace.Store(ctx, Memory{
				Chamber:    ChamberDirectives,
				Content:    fmt.Sprintf("height %d: %s", local.BlockHeight, dir),
				Importance: 1 - resonance.Normalize(float64(dir.Priority()), 0, float64(len(priorities)-1)),
			})
		}
	}
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, TopicDirective, rec); err != nil {
			d.logger.Warn("publish heartbeat", zap.Error(err))
		}
	}
	d.logger.Debug("archon heartbeat",
		zap.Uint64("height", local.BlockHeight),
		zap.String("directive", string(top.Code)),
		zap.Int("remotes", remotes))
}

// changedDirectives returns the corrective directives of dirs when they
// differ from the last set journaled, and nothing otherwise.
func (d *Daemon) changedDirectives(dirs []Directive) []Directive {
	var out []Directive
	keys := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir.Code == A0UnifyState {
			continue
		}
		out = append(out, dir)
		keys = append(keys, string(dir.Code)+":"+dir.Detail)
	}
	key := strings.Join(keys, "|")

	d.mu.Lock()
	defer d.mu.Unlock()
	if key == d.journaled {
		return nil
	}
	d.journaled = key
	return out
}

func (d *Daemon) announce(ctx context.Context, local *StateVector, dirs []Directive) {
	var urgent []Directive
	codes := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir.Priority() <= announceMaxPriority {
			urgent = append(urgent, dir)
			codes = append(codes, string(dir.Code))
		}
	}
	key := strings.Join(codes, ",")

	d.mu.Lock()
	changed := key != d.announced
	d.announced = key
	d.mu.Unlock()
	if !changed || d.announcer == nil {
		return
	}
	for _, dir := range urgent {
		if err := d.announcer.Announce(ctx, dir, local); err != nil {
			d.logger.Warn("announce directive", zap.String("code", string(dir.Code)), zap.Error(err))
		}
	}
}

// ObserveRemote stores a peer's state vector and returns the directive it
// earns against the local state.
func (d *Daemon) ObserveRemote(v *StateVector) (Directive, error) {
	if v == nil || v.NodeID == "" {
		return Directive{}, fmt.Errorf("%w: missing node id", ErrIntegrity)
	}
	if !v.VerifyIntegrity() {
		return Directive{}, fmt.Errorf("%w: node %s", ErrIntegrity, v.NodeID)
	}

	d.mu.Lock()
	if _, known := d.remotes[v.NodeID]; !known && len(d.remotes) >= d.cfg.MaxRemotes {
		var oldest string
		for id, r := range d.remotes {
			if oldest == "" || r.Timestamp < d.remotes[oldest].Timestamp {
				oldest = id
			}
		}
		delete(d.remotes, oldest)
	}
	cp := *v
	d.remotes[v.NodeID] = &cp
	local := d.current
	d.mu.Unlock()

	if local == nil {
		var err error
		if local, err = d.BuildStateVector(); err != nil {
			return Directive{}, err
		}
	}
	return IssueA0(local, v), nil
}

// Remotes returns the known peer vectors ordered by node id.
func (d *Daemon) Remotes() []*StateVector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*StateVector, 0, len(d.remotes))
	for _, r := range d.remotes {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// PeerCount is the number of known peers.
func (d *Daemon) PeerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.remotes)
}

// Current returns the last heartbeat's vector, or nil.
func (d *Daemon) Current() *StateVector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return nil
	}
	cp := *d.current
	return &cp
}

// RecentHeartbeats returns up to n heartbeats, oldest first.
func (d *Daemon) RecentHeartbeats(n int) []HeartbeatRecord {
	recs := d.heartbeats.Last(n)
	out := make([]HeartbeatRecord, 0, len(recs))
	for _, r := range recs {
		hb := HeartbeatRecord{Timestamp: r.Timestamp}
		hb.Height, _ = strconv.ParseUint(r.Labels["height"], 10, 64)
		hb.Remotes, _ = strconv.Atoi(r.Labels["remotes"])
		_ = json.Unmarshal([]byte(r.Text), &hb.Directives)
		out = append(out, hb)
	}
	return out
}
