package sdk

import "context"

// ArchonAPI wraps the archon_* and fabric_* methods.
type ArchonAPI struct{ c *Client }

func (a *ArchonAPI) State(ctx context.Context) (*ArchonState, error) {
	var out ArchonState
	if err := a.c.Call(ctx, "archon_getState", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Directives returns up to limit recent heartbeats, oldest first.
func (a *ArchonAPI) Directives(ctx context.Context, limit int) ([]Heartbeat, error) {
	var out struct {
		Heartbeats []Heartbeat `json:"heartbeats"`
	}
	if err := a.c.Call(ctx, "archon_getDirectives", limitParams(limit), &out); err != nil {
		return nil, err
	}
	return out.Heartbeats, nil
}

// SubmitStateVector hands a peer vector to the node and returns its verdict.
func (a *ArchonAPI) SubmitStateVector(ctx context.Context, v *StateVector, peerAddress string) (*Directive, error) {
	params := map[string]any{"state_vector": v}
	if peerAddress != "" {
		params["address"] = peerAddress
	}
	var out Directive
	if err := a.c.Call(ctx, "archon_submitStateVector", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ArchonAPI) Topology(ctx context.Context) (*Topology, error) {
	var out Topology
	if err := a.c.Call(ctx, "fabric_getTopology", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func limitParams(limit int) any {
	if limit > 0 {
		return map[string]int{"limit": limit}
	}
	return nil
}

// Anomalies returns up to limit logged anomalies, oldest first.
func (a *ArchonAPI) Anomalies(ctx context.Context, limit int) ([]Anomaly, error) {
	var out struct {
		Anomalies []Anomaly `json:"anomalies"`
	}
	if err := a.c.Call(ctx, "archon_getAnomalies", limitParams(limit), &out); err != nil {
		return nil, err
	}
	return out.Anomalies, nil
}

func (a *ArchonAPI) Chambers(ctx context.Context) ([]Chamber, error) {
	var out struct {
		Chambers []Chamber `json:"chambers"`
	}
	if err := a.c.Call(ctx, "archon_getChambers", nil, &out); err != nil {
		return nil, err
	}
	return out.Chambers, nil
}

// Recall searches the node's memory palace.
func (a *ArchonAPI) Recall(ctx context.Context, query string, limit int) ([]Memory, error) {
	params := map[string]any{"query": query}
	if limit > 0 {
		params["limit"] = limit
	}
	var out struct {
		Memories []Memory `json:"memories"`
	}
	if err := a.c.Call(ctx, "archon_recall", params, &out); err != nil {
		return nil, err
	}
	return out.Memories, nil
}

func (a *ArchonAPI) Journal(ctx context.Context, limit int) (*Journal, error) {
	var out Journal
	if err := a.c.Call(ctx, "archon_getJournal", limitParams(limit), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitVote casts v and returns the updated tally.
func (a *ArchonAPI) SubmitVote(ctx context.Context, v Vote) (*Proposal, error) {
	var out Proposal
	if err := a.c.Call(ctx, "archon_submitVote", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ArchonAPI) Proposal(ctx context.Context, id string) (*Proposal, error) {
	var out Proposal
	if err := a.c.Call(ctx, "archon_getProposal", map[string]string{"proposal_id": id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
