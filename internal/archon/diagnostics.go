package archon

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/resonance"
)

// Outcome is a diagnostic result.
type Outcome string

const (
	Pass          Outcome = "pass"
	Warn          Outcome = "warning"
	Fail          Outcome = "fail"
	NotApplicable Outcome = "not_applicable"
)

func (o Outcome) score() float64 {
	switch o {
	case Pass, NotApplicable:
		return 1
	case Warn:
		return 0.5
	default:
		return 0
	}
}

// Category groups diagnostic tests.
type Category string

const (
	CategoryRuntime Category = "runtime"
	CategorySDK     Category = "sdk"
	CategoryState   Category = "state"
	CategoryNetwork Category = "network"
)

// Test is one diagnostic run.
type Test struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Name      string            `json:"name"`
	Result    Outcome           `json:"result"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// ChainView is the part of the node the archon inspects.
type ChainView interface {
	ChainInfo() chain.ChainInfo
	StateRoot() ([32]byte, error)
	VerifyInvariants() error
	Runtime() *chain.Runtime
	Config() chain.Config
	LatestBlock() *chain.Block
	PendingCount() int
}

// DiagnosticsConfig tunes the checks.
type DiagnosticsConfig struct {
	// ExpectedRegistryHash pins the runtime call set; empty accepts any.
	ExpectedRegistryHash string
	// ServedMethods lists the RPC methods this node exposes.
	ServedMethods func() []string
	// RequiredMethods are the methods the SDK depends on.
	RequiredMethods []string
	// PeerCount reports how many remote state vectors are known.
	PeerCount func() int
	// HistorySize bounds the run history.
	HistorySize int
}

// Diagnostics runs startup and per-block checks against the node.
type Diagnostics struct {
	view    ChainView
	cfg     DiagnosticsConfig
	latest  map[string]Test
	history *resonance.Window
	mu      sync.RWMutex
}

// NewDiagnostics creates a diagnostic matrix over view.
func NewDiagnostics(view ChainView, cfg DiagnosticsConfig) *Diagnostics {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 512
	}
	return &Diagnostics{
		view:    view,
		cfg:     cfg,
		latest:  make(map[string]Test),
		history: resonance.NewWindow(cfg.HistorySize, resonance.DropOldest),
	}
}

// RunStartup checks runtime integrity, SDK compatibility, state consistency
// and network reachability.
func (d *Diagnostics) RunStartup() []Test {
	return []Test{
		d.record("runtime_integrity", d.runtimeIntegrity()),
		d.record("sdk_compatibility", d.sdkCompatibility()),
		d.record("state_consistency", d.stateConsistency()),
		d.record("network_connectivity", d.networkConnectivity()),
	}
}

// RunBlock checks the state root and invariants at height.
func (d *Diagnostics) RunBlock(height uint64) []Test {
	return []Test{
		d.record("state_root", d.stateRootConsistency(height)),
		d.record("invariants", d.invariants(height)),
	}
}

func (d *Diagnostics) record(key string, t Test) Test {
	t.Timestamp = time.Now().UTC()
	d.mu.Lock()
	d.latest[key] = t
	d.mu.Unlock()

	labels := map[string]string{
		"id":       t.ID,
		"category": string(t.Category),
		"result":   string(t.Result),
	}
	if t.Message != "" {
		labels["message"] = t.Message
	}
	d.history.Add(resonance.Record{
		Timestamp: t.Timestamp,
		Score:     t.Result.score(),
		Text:      t.Name,
		Labels:    labels,
	})
	return t
}

func (d *Diagnostics) runtimeIntegrity() Test {
	t := Test{ID: "runtime_integrity", Category: CategoryRuntime, Name: "Runtime Module Integrity", Result: Pass}
	rt := d.view.Runtime()
	calls := rt.Calls()
	hash := rt.RegistryHash()
	got := hex.EncodeToString(hash[:])
	t.Data = map[string]string{"calls": strconv.Itoa(len(calls)), "registry_hash": got}
	switch {
	case len(calls) == 0:
		t.Result, t.Message = Fail, "no runtime calls registered"
	case d.cfg.ExpectedRegistryHash != "" && d.cfg.ExpectedRegistryHash != got:
		t.Result, t.Message = Fail, fmt.Sprintf("registry hash %s, expected %s", short(got), short(d.cfg.ExpectedRegistryHash))
	}
	return t
}

func (d *Diagnostics) sdkCompatibility() Test {
	t := Test{ID: "sdk_compatibility", Category: CategorySDK, Name: "SDK Compatibility Check", Result: Pass}
	if d.cfg.ServedMethods == nil || len(d.cfg.RequiredMethods) == 0 {
		t.Result = NotApplicable
		return t
	}
	served := make(map[string]bool)
	for _, m := range d.cfg.ServedMethods() {
		served[m] = true
	}
	var missing []string
	for _, m := range d.cfg.RequiredMethods {
		if !served[m] {
			missing = append(missing, m)
		}
	}
	sort.Strings(missing)
	t.Data = map[string]string{"served": strconv.Itoa(len(served)), "required": strconv.Itoa(len(d.cfg.RequiredMethods))}
	if len(missing) > 0 {
		t.Result, t.Message = Warn, "missing methods: "+strings.Join(missing, ", ")
	}
	return t
}

func (d *Diagnostics) stateConsistency() Test {
	t := Test{ID: "state_consistency", Category: CategoryState, Name: "State Consistency Check", Result: Pass}
	a, err := d.view.StateRoot()
	if err != nil {
		t.Result, t.Message = Fail, err.Error()
		return t
	}
	b, err := d.view.StateRoot()
	if err != nil {
		t.Result, t.Message = Fail, err.Error()
		return t
	}
	if a != b {
		t.Result, t.Message = Fail, "state root is not deterministic"
		return t
	}
	if err := d.view.VerifyInvariants(); err != nil {
		t.Result, t.Message = Fail, err.Error()
	}
	return t
}

func (d *Diagnostics) networkConnectivity() Test {
	t := Test{ID: "network_connectivity", Category: CategoryNetwork, Name: "Network Connectivity Check", Result: NotApplicable}
	if d.cfg.PeerCount == nil {
		return t
	}
	n := d.cfg.PeerCount()
	t.Data = map[string]string{"peers": strconv.Itoa(n)}
	if n > 0 {
		t.Result = Pass
	}
	return t
}

func (d *Diagnostics) stateRootConsistency(height uint64) Test {
	t := Test{
		ID:       fmt.Sprintf("state_root_%d", height),
		Category: CategoryState,
		Name:     "State Root Consistency",
		Result:   Pass,
		Data:     map[string]string{"block_height": strconv.FormatUint(height, 10)},
	}
	root, err := d.view.StateRoot()
	if err != nil {
		t.Result, t.Message = Fail, err.Error()
		return t
	}
	b := d.view.LatestBlock()
	if b == nil {
		t.Result, t.Message = Warn, "no block sealed yet"
		return t
	}
	got := hex.EncodeToString(root[:])
	t.Data["state_root"] = got
	// Executed but unsealed transactions legitimately move the root ahead.
	if pending := d.view.PendingCount(); pending > 0 {
		t.Data["pending"] = strconv.Itoa(pending)
		return t
	}
	if b.StateRoot != got {
		t.Result, t.Message = Fail, fmt.Sprintf("block %d root %s != ledger %s", b.Height, short(b.StateRoot), short(got))
	}
	return t
}

func (d *Diagnostics) invariants(height uint64) Test {
	t := Test{
		ID:       fmt.Sprintf("invariants_%d", height),
		Category: CategoryState,
		Name:     "Invariant Checks",
		Result:   Pass,
		Data:     map[string]string{"block_height": strconv.FormatUint(height, 10)},
	}
	if err := d.view.VerifyInvariants(); err != nil {
		t.Result, t.Message = Fail, err.Error()
	}
	return t
}

// Latest returns the most recent run of each test, sorted by ID.
func (d *Diagnostics) Latest() []Test {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Test, 0, len(d.latest))
	for _, t := range d.latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCategory filters Latest.
func (d *Diagnostics) ByCategory(c Category) []Test {
	var out []Test
	for _, t := range d.Latest() {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}

// History returns up to n recent runs as recorded.
func (d *Diagnostics) History(n int) []resonance.Record { return d.history.Last(n) }

// Health folds the latest runs: any failure fails, any warning warns.
func (d *Diagnostics) Health() Outcome {
	d.mu.RLock()
	defer d.mu.RUnlock()
	health := Pass
	for _, t := range d.latest {
		switch t.Result {
		case Fail:
			return Fail
		case Warn:
			health = Warn
		}
	}
	return health
}

// HealthScore is the mean outcome score of the latest runs, 1 when empty.
func (d *Diagnostics) HealthScore() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.latest) == 0 {
		return 1
	}
	scores := make([]float64, 0, len(d.latest))
	for _, t := range d.latest {
		scores = append(scores, t.Result.score())
	}
	return resonance.Mean(scores)
}
