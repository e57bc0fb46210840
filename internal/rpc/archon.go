package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/fabric"
	"github.com/nidhogg/demiurge/sdk"
	"go.uber.org/zap"
)

const defaultDirectiveLimit = 20

var (
	errNoArchon = errors.New("archon daemon not running")
	errNoMesh   = errors.New("fabric mesh not running")
)

type directivesParams struct {
	Limit int `json:"limit,omitempty"`
}

type submitVectorParams struct {
	StateVector *sdk.StateVector `json:"state_vector"`
	Address     string           `json:"address,omitempty"`
}

func (s *Server) registerArchon() {
	s.register("archon_getState", s.archonState)
	s.register("archon_getDirectives", s.directives)
	s.register("archon_submitStateVector", s.submitVector)
	s.register("fabric_getTopology", s.topology)
}

func (s *Server) archonState(context.Context, json.RawMessage) (any, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	cur := s.daemon.Current()
	if cur == nil {
		var err error
		if cur, err = s.daemon.BuildStateVector(); err != nil {
			return nil, err
		}
	}
	diag := s.daemon.Diagnostics()
	latest := diag.Latest()
	tests := make([]sdk.DiagnosticTest, 0, len(latest))
	for _, t := range latest {
		tests = append(tests, sdk.DiagnosticTest{
			ID:       t.ID,
			Category: string(t.Category),
			Name:     t.Name,
			Result:   string(t.Result),
			Message:  t.Message,
		})
	}
	core := s.daemon.Core()
	st := core.State()
	return sdk.ArchonState{
		StateVector: vectorView(cur),
		Health:      string(diag.Health()),
		HealthScore: diag.HealthScore(),
		Core: sdk.CoreState{
			ArchonID:          core.Identity().ID,
			Consciousness:     st.Consciousness,
			Coherence:         st.Coherence,
			Stability:         st.Stability,
			NodeParticipation: st.NodeParticipation,
			Awakened:          core.IsAwakened(),
		},
		Diagnostics: tests,
		Peers:       s.daemon.PeerCount(),
		JournalRoot: s.daemon.Journal().Root(),
	}, nil
}

func (s *Server) directives(_ context.Context, raw json.RawMessage) (any, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	var p directivesParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultDirectiveLimit
	}
	beats := s.daemon.RecentHeartbeats(p.Limit)
	out := make([]sdk.Heartbeat, 0, len(beats))
	for _, hb := range beats {
		dirs := make([]sdk.Directive, 0, len(hb.Directives))
		for _, d := range hb.Directives {
			dirs = append(dirs, directiveView(d))
		}
		out = append(out, sdk.Heartbeat{Height: hb.Height, Directives: dirs, Remotes: hb.Remotes, Timestamp: hb.Timestamp})
	}
	return map[string][]sdk.Heartbeat{"heartbeats": out}, nil
}

// submitVector records a peer's vector. Peers that agree with the local
// state strengthen their mesh link. The mesh keeps only the daemon's known
// peers.
func (s *Server) submitVector(ctx context.Context, raw json.RawMessage) (any, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	var p submitVectorParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.StateVector == nil {
		return nil, invalidParams("state_vector is required")
	}
	v := vectorFromView(p.StateVector)
	if v.NodeID == s.daemon.NodeID() {
		return nil, invalidParams("state vector is from this node")
	}
	dir, err := s.daemon.ObserveRemote(v)
	if err != nil {
		return nil, err
	}
	if s.mesh != nil {
		s.linkPeer(ctx, v, p.Address, dir)
	}
	return directiveView(dir), nil
}

func (s *Server) linkPeer(ctx context.Context, v *archon.StateVector, addr string, dir archon.Directive) {
	health := 0.0
	if v.InvariantsOK {
		health = 1
	}
	s.mesh.AddNode(ctx, fabric.NodeInfo{ID: v.NodeID, Address: addr, Health: health})
	if n := s.mesh.Retain(s.daemon.Members()); n > 0 {
		s.logger.Debug("pruned mesh peers", zap.Int("removed", n))
	}
	if dir.Code != archon.A0UnifyState {
		return
	}
	local := s.mesh.LocalID()
	_, err := s.mesh.Synchronize(ctx, local, v.NodeID)
	if errors.Is(err, fabric.ErrNoLink) {
		_, err = s.mesh.Connect(ctx, local, v.NodeID, 0.5, 0)
	}
	if err != nil {
		s.logger.Warn("link peer", zap.String("node", v.NodeID), zap.Error(err))
	}
}

func (s *Server) topology(context.Context, json.RawMessage) (any, error) {
	if s.mesh == nil {
		return nil, errNoMesh
	}
	t := s.mesh.Analyze()
	nodes := s.mesh.Nodes()
	links := s.mesh.Links("")
	out := sdk.Topology{
		NodeCount:     t.NodeCount,
		LinkCount:     t.LinkCount,
		AverageDegree: t.AverageDegree,
		Connectivity:  t.Connectivity,
		Entropy:       t.Entropy,
		Stability:     t.Stability,
		Convergence:   string(s.mesh.CheckConvergence().State),
		Nodes:         make([]sdk.MeshNode, 0, len(nodes)),
		Links:         make([]sdk.MeshLink, 0, len(links)),
	}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, sdk.MeshNode{ID: n.ID, Address: n.Address, Health: n.Health, LastSeen: n.LastSeen})
	}
	for _, l := range links {
		out.Links = append(out.Links, sdk.MeshLink{From: l.From, To: l.To, Resonance: l.Resonance, Quality: string(l.Quality()), LatencyMS: l.LatencyMS})
	}
	return out, nil
}
