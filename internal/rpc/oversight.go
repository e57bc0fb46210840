package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/sdk"
)

var (
	errNoPalace  = errors.New("memory palace not configured")
	errNoWatcher = errors.New("anomaly watcher not running")
)

type limitParams struct {
	Limit int `json:"limit,omitempty"`
}

type recallParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type proposalParams struct {
	ProposalID string `json:"proposal_id"`
}

func (s *Server) registerOversight() {
	s.register("archon_getAnomalies", s.anomalies)
	s.register("archon_getChambers", s.chambers)
	s.register("archon_recall", s.recall)
	s.register("archon_getJournal", s.journal)
	s.register("archon_submitVote", s.submitVote)
	s.register("archon_getProposal", s.proposal)
}

func limitOr(raw json.RawMessage, def int) (int, error) {
	var p limitParams
	if err := decodeParams(raw, &p); err != nil {
		return 0, err
	}
	if p.Limit <= 0 {
		return def, nil
	}
	return p.Limit, nil
}

func (s *Server) anomalies(_ context.Context, raw json.RawMessage) (any, error) {
	if s.watcher == nil {
		return nil, errNoWatcher
	}
	limit, err := limitOr(raw, defaultDirectiveLimit)
	if err != nil {
		return nil, err
	}
	recent := s.watcher.Recent(limit)
	out := make([]sdk.Anomaly, 0, len(recent))
	for _, a := range recent {
		out = append(out, sdk.Anomaly{
			Type:        string(a.Type),
			Severity:    a.Severity,
			Subsystem:   a.Subsystem,
			Description: a.Description,
			Timestamp:   a.Timestamp,
		})
	}
	return map[string][]sdk.Anomaly{"anomalies": out}, nil
}

func (s *Server) palace() (*archon.MemoryPalace, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	p := s.daemon.Palace()
	if p == nil {
		return nil, errNoPalace
	}
	return p, nil
}

func (s *Server) chambers(context.Context, json.RawMessage) (any, error) {
	p, err := s.palace()
	if err != nil {
		return nil, err
	}
	infos := p.Chambers()
	out := make([]sdk.Chamber, 0, len(infos))
	for _, c := range infos {
		out = append(out, sdk.Chamber{ID: c.ID, Memories: c.Memories, Importance: c.Importance})
	}
	return map[string][]sdk.Chamber{"chambers": out}, nil
}

func (s *Server) recall(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := s.palace()
	if err != nil {
		return nil, err
	}
	var params recallParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Query == "" {
		return nil, invalidParams("query is required")
	}
	if params.Limit <= 0 {
		params.Limit = 5
	}
	mems, err := p.Recall(ctx, params.Query, params.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]sdk.Memory, 0, len(mems))
	for _, m := range mems {
		out = append(out, sdk.Memory{
			ID:          m.ID,
			Chamber:     m.Chamber,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			Importance:  m.Importance,
			AccessCount: m.AccessCount,
		})
	}
	return map[string][]sdk.Memory{"memories": out}, nil
}

func (s *Server) journal(_ context.Context, raw json.RawMessage) (any, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	limit, err := limitOr(raw, defaultDirectiveLimit)
	if err != nil {
		return nil, err
	}
	j := s.daemon.Journal()
	entries := j.Entries()
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := sdk.Journal{Root: j.Root(), Verified: j.VerifyIntegrity(), Entries: make([]sdk.JournalEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, sdk.JournalEntry{
			ID:            e.ID,
			ArtifactID:    e.ArtifactID,
			Result:        e.Result,
			Timestamp:     e.Timestamp,
			MerkleReceipt: e.MerkleReceipt,
			PreviousHash:  e.PreviousHash,
		})
	}
	return out, nil
}

// submitVote records a vote and returns the proposal's tally. Eligible
// voters are this node, through the genesis archon key, and its known peers.
func (s *Server) submitVote(_ context.Context, raw json.RawMessage) (any, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	var v sdk.Vote
	if err := decodeParams(raw, &v); err != nil {
		return nil, err
	}
	err := s.daemon.Votes().Submit(archon.Vote{
		Voter:      v.Voter,
		ProposalID: v.ProposalID,
		Choice:     archon.Choice(v.Choice),
		Timestamp:  v.Timestamp,
		Signature:  v.Signature,
		Key:        v.Key,
	})
	if err != nil {
		return nil, err
	}
	return s.tally(v.ProposalID), nil
}

func (s *Server) proposal(_ context.Context, raw json.RawMessage) (any, error) {
	if s.daemon == nil {
		return nil, errNoArchon
	}
	var p proposalParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ProposalID == "" {
		return nil, invalidParams("proposal_id is required")
	}
	return s.tally(p.ProposalID), nil
}

func (s *Server) tally(id string) sdk.Proposal {
	votes := s.daemon.Votes()
	r := s.daemon.Proposal(id)
	out := sdk.Proposal{
		ProposalID:    r.ProposalID,
		Approve:       r.Approve,
		Reject:        r.Reject,
		Abstain:       r.Abstain,
		Participation: r.Participation,
		ApprovalRate:  r.ApprovalRate,
		Approved:      r.Approved,
	}
	for _, v := range votes.Votes(id) {
		out.Votes = append(out.Votes, sdk.Vote{
			Voter:      v.Voter,
			ProposalID: v.ProposalID,
			Choice:     string(v.Choice),
			Timestamp:  v.Timestamp,
			Signature:  v.Signature,
			Key:        v.Key,
		})
	}
	return out
}
