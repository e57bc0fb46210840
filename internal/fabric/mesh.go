// Package fabric maintains the node mesh: peers, the resonance of the links
// between them and the topology metrics derived from it.
package fabric

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/resonance"
	"go.uber.org/zap"
)

const (
	// SyncBoost is added to a link's resonance on each synchronization.
	SyncBoost = 0.1
	// DefaultDecayRate is subtracted from every link per clock tick.
	DefaultDecayRate = 0.001
	// DefaultConvergenceThreshold is the stability at which the mesh counts as converged.
	DefaultConvergenceThreshold = 0.9
	// DefaultMaxNodes is the local node plus 64 peers.
	DefaultMaxNodes = 65
)

var (
	ErrUnknownNode = errors.New("unknown mesh node")
	ErrNoLink      = errors.New("no link between nodes")
	ErrSelfLink    = errors.New("a node cannot link to itself")
)

// Quality classifies link resonance.
type Quality string

const (
	Perfect Quality = "perfect"
	High    Quality = "high"
	Medium  Quality = "medium"
	Low     Quality = "low"
	Broken  Quality = "broken"
)

var qualityBands = []resonance.Band{
	{Floor: 0.95, Level: string(Perfect)},
	{Floor: 0.8, Level: string(High)},
	{Floor: 0.6, Level: string(Medium)},
	{Floor: 0.3, Level: string(Low)},
	{Floor: 0, Level: string(Broken)},
}

// Classify returns the quality band of r.
func Classify(r float64) Quality {
	return Quality(resonance.Classify(r, qualityBands).Level)
}

// NodeInfo is a mesh member.
type NodeInfo struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Health   float64   `json:"health"`
	LastSeen time.Time `json:"last_seen"`
}

// Link is an undirected connection. From sorts before To.
type Link struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	Resonance     float64   `json:"resonance"`
	LatencyMS     uint64    `json:"latency_ms"`
	EstablishedAt time.Time `json:"established_at"`
	LastSync      time.Time `json:"last_sync"`
}

// Quality is the link's band.
func (l Link) Quality() Quality { return Classify(l.Resonance) }

type linkKey struct{ a, b string }

func keyOf(a, b string) linkKey {
	if b < a {
		a, b = b, a
	}
	return linkKey{a, b}
}

// Measurement is a point-in-time reading of one link.
type Measurement struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Resonance float64   `json:"resonance"`
	Quality   Quality   `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// Topology summarizes the mesh.
type Topology struct {
	NodeCount     int     `json:"node_count"`
	LinkCount     int     `json:"link_count"`
	AverageDegree float64 `json:"average_degree"`
	Connectivity  float64 `json:"connectivity"`
	Entropy       float64 `json:"entropy"`
	Stability     float64 `json:"stability"`
}

// ConvergenceState describes the stability trend.
type ConvergenceState string

const (
	Converging ConvergenceState = "converging"
	Converged  ConvergenceState = "converged"
	Diverging  ConvergenceState = "diverging"
	Unstable   ConvergenceState = "unstable"
)

// Convergence is the outcome of CheckConvergence.
type Convergence struct {
	State      ConvergenceState `json:"state"`
	Rate       float64          `json:"convergence_rate"`
	Stability  float64          `json:"stability_score"`
	Iterations uint64           `json:"iterations"`
}

// GraphStore persists links.
type GraphStore interface {
	SaveNode(ctx context.Context, n NodeInfo) error
	SaveLink(ctx context.Context, l Link) error
	LoadLinks(ctx context.Context) ([]Link, error)
}

// Mesh is the in-memory mesh, optionally mirrored to a GraphStore.
type Mesh struct {
	local      string
	nodes      map[string]*NodeInfo
	links      map[linkKey]*Link
	decayRate  float64
	threshold  float64
	prevStable float64
	iterations uint64
	maxNodes   int
	store      GraphStore
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewMesh creates a mesh holding only the local node.
func NewMesh(localID string, decayRate float64, logger *zap.Logger) *Mesh {
	if decayRate <= 0 {
		decayRate = DefaultDecayRate
	}
	m := &Mesh{
		local:      localID,
		nodes:      make(map[string]*NodeInfo),
		links:      make(map[linkKey]*Link),
		decayRate:  decayRate,
		threshold:  DefaultConvergenceThreshold,
		prevStable: 1,
		maxNodes:   DefaultMaxNodes,
		logger:     logger,
	}
	m.nodes[localID] = &NodeInfo{ID: localID, Address: "local", Health: 1, LastSeen: time.Now().UTC()}
	return m
}

// SetStore mirrors subsequent changes to s.
func (m *Mesh) SetStore(s GraphStore) { m.store = s }

// LocalID is the local node's ID.
func (m *Mesh) LocalID() string { return m.local }

// Load merges the stored links into the mesh.
func (m *Mesh) Load(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	links, err := m.store.LoadLinks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load mesh links: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range links {
		l := links[i]
		for _, id := range []string{l.From, l.To} {
			if _, ok := m.nodes[id]; !ok {
				m.nodes[id] = &NodeInfo{ID: id, LastSeen: l.LastSync}
			}
		}
		k := keyOf(l.From, l.To)
		l.From, l.To = k.a, k.b
		l.Resonance = resonance.Clamp(l.Resonance)
		m.links[k] = &l
	}
	return len(links), nil
}

// SetMaxNodes bounds the mesh, the local node included. Values below 2
// are ignored.
func (m *Mesh) SetMaxNodes(n int) {
	if n < 2 {
		return
	}
	m.mu.Lock()
	m.maxNodes = n
	m.mu.Unlock()
}

// AddNode inserts or refreshes a node. A new node joining a full mesh
// replaces the peer seen least recently.
func (m *Mesh) AddNode(ctx context.Context, n NodeInfo) {
	if n.LastSeen.IsZero() {
		n.LastSeen = time.Now().UTC()
	}
	n.Health = resonance.Clamp(n.Health)
	m.mu.Lock()
	if _, known := m.nodes[n.ID]; !known && len(m.nodes) >= m.maxNodes {
		var stale *NodeInfo
		for id, node := range m.nodes {
			if id != m.local && (stale == nil || node.LastSeen.Before(stale.LastSeen)) {
				stale = node
			}
		}
		if stale != nil {
			m.removeLocked(stale.ID)
		}
	}
	m.nodes[n.ID] = &n
	m.mu.Unlock()
	m.persistNode(ctx, n)
}

// Retain drops every peer not in ids, with its links. The local node stays.
func (m *Mesh) Retain(ids []string) int {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id := range m.nodes {
		if id != m.local && !keep[id] {
			m.removeLocked(id)
			removed++
		}
	}
	return removed
}

func (m *Mesh) removeLocked(id string) {
	delete(m.nodes, id)
	for k := range m.links {
		if k.a == id || k.b == id {
			delete(m.links, k)
		}
	}
}

// Connect creates or replaces the link between a and b.
func (m *Mesh) Connect(ctx context.Context, a, b string, r float64, latencyMS uint64) (Link, error) {
	if a == b {
		return Link{}, ErrSelfLink
	}
	now := time.Now().UTC()
	m.mu.Lock()
	for _, id := range []string{a, b} {
		if _, ok := m.nodes[id]; !ok {
			m.mu.Unlock()
			return Link{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	k := keyOf(a, b)
	l := &Link{From: k.a, To: k.b, Resonance: resonance.Clamp(r), LatencyMS: latencyMS, EstablishedAt: now, LastSync: now}
	m.links[k] = l
	out := *l
	m.mu.Unlock()

	m.persistLink(ctx, out)
	return out, nil
}

// Synchronize raises the link's resonance by SyncBoost, capped at 1.
func (m *Mesh) Synchronize(ctx context.Context, a, b string) (Link, error) {
	m.mu.Lock()
	l, ok := m.links[keyOf(a, b)]
	if !ok {
		m.mu.Unlock()
		return Link{}, fmt.Errorf("%w: %s-%s", ErrNoLink, a, b)
	}
	l.Resonance = math.Min(1, l.Resonance+SyncBoost)
	l.LastSync = time.Now().UTC()
	for _, id := range []string{a, b} {
		m.nodes[id].LastSeen = l.LastSync
	}
	out := *l
	m.mu.Unlock()

	m.persistLink(ctx, out)
	return out, nil
}

// Measure reads the link between a and b.
func (m *Mesh) Measure(a, b string) (Measurement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[keyOf(a, b)]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %s-%s", ErrNoLink, a, b)
	}
	return Measurement{From: a, To: b, Resonance: l.Resonance, Quality: l.Quality(), Timestamp: time.Now().UTC()}, nil
}

// Decay lowers every link by rate, flooring at 0.
func (m *Mesh) Decay(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		l.Resonance = math.Max(0, l.Resonance-rate)
	}
}

// ForceConvergence synchronizes every link once.
func (m *Mesh) ForceConvergence() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, l := range m.links {
		l.Resonance = math.Min(1, l.Resonance+SyncBoost)
		l.LastSync = now
	}
}

// Nodes returns the members sorted by ID.
func (m *Mesh) Nodes() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeInfo, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns every link, or only those touching node when it is set.
func (m *Mesh) Links(node string) []Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Link, 0, len(m.links))
	for _, l := range m.links {
		if node == "" || l.From == node || l.To == node {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Stability is the mean link resonance, 1 for a mesh without links.
func (m *Mesh) Stability() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stabilityLocked()
}

func (m *Mesh) stabilityLocked() float64 {
	if len(m.links) == 0 {
		return 1
	}
	rs := make([]float64, 0, len(m.links))
	for _, l := range m.links {
		rs = append(rs, l.Resonance)
	}
	return resonance.Mean(rs)
}

// Analyze computes the topology metrics. Entropy is the Shannon entropy of
// each link's share of total resonance, normalized to [0,1].
func (m *Mesh) Analyze() Topology {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, l := len(m.nodes), len(m.links)
	t := Topology{NodeCount: n, LinkCount: l, Stability: m.stabilityLocked()}
	if n > 0 {
		t.AverageDegree = float64(2*l) / float64(n)
	}
	if possible := n * (n - 1) / 2; possible > 0 {
		t.Connectivity = float64(l) / float64(possible)
	}
	if l > 1 {
		var total float64
		for _, lk := range m.links {
			total += lk.Resonance
		}
		if total > 0 {
			var h float64
			for _, lk := range m.links {
				if lk.Resonance > 0 {
					p := lk.Resonance / total
					h -= p * math.Log2(p)
				}
			}
			t.Entropy = resonance.Clamp(h / math.Log2(float64(l)))
		}
	}
	return t
}

// CheckConvergence compares stability against the threshold and the trend
// since the previous tick.
func (m *Mesh) CheckConvergence() Convergence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stabilityLocked()
	c := Convergence{Stability: s, Rate: s - m.prevStable, Iterations: m.iterations}
	switch {
	case s >= m.threshold:
		c.State = Converged
	case c.Rate > 0:
		c.State = Converging
	case c.Rate < -0.1:
		c.State = Diverging
	default:
		c.State = Unstable
	}
	return c
}

// OnTick decays the links and records the stability trend.
func (m *Mesh) OnTick(_ time.Time) {
	m.mu.Lock()
	m.prevStable = m.stabilityLocked()
	m.iterations++
	m.mu.Unlock()

	m.Decay(m.decayRate)

	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, l := range m.Links("") {
		m.persistLink(ctx, l)
	}
}

func (m *Mesh) persistNode(ctx context.Context, n NodeInfo) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveNode(ctx, n); err != nil {
		m.logger.Warn("persist mesh node", zap.String("node", n.ID), zap.Error(err))
	}
}

func (m *Mesh) persistLink(ctx context.Context, l Link) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveLink(ctx, l); err != nil {
		m.logger.Warn("persist mesh link",
			zap.String("from", l.From),
			zap.String("to", l.To),
			zap.Error(err))
	}
}
