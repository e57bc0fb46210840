package archon

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/signing"
)

// DefaultQuorum is the participation needed for a valid outcome.
const DefaultQuorum = 0.67

// Choice is a voter's position on a proposal.
type Choice string

const (
	Approve Choice = "approve"
	Oppose  Choice = "reject"
	Abstain Choice = "abstain"
)

var ErrInvalidVote = errors.New("invalid vote")

// DefaultMaxProposals bounds the proposals tracked at once.
const DefaultMaxProposals = 256

// Vote is one node's position. When Signature is set it must be the
// signature over VoteMessage by Key, or by Voter when Key is empty.
type Vote struct {
	Voter      string    `json:"voter"`
	ProposalID string    `json:"proposal_id"`
	Choice     Choice    `json:"choice"`
	Timestamp  time.Time `json:"timestamp"`
	Signature  string    `json:"signature,omitempty"`
	Key        string    `json:"key,omitempty"`
}

// VoteMessage is the byte string a voter signs.
func VoteMessage(proposalID string, c Choice) []byte {
	return []byte("demiurge/vote\x00" + proposalID + "\x00" + string(c))
}

// Electorate decides who may vote.
type Electorate interface {
	// Members lists the current voters.
	Members() []string
	// Resolve names the member a verified vote is cast for.
	Resolve(v Vote) (string, bool)
}

// ProposalResult summarizes a tally.
type ProposalResult struct {
	ProposalID    string  `json:"proposal_id"`
	Approve       int     `json:"approve"`
	Reject        int     `json:"reject"`
	Abstain       int     `json:"abstain"`
	Participation float64 `json:"participation"`
	ApprovalRate  float64 `json:"approval_rate"`
	Approved      bool    `json:"approved"`
}

type proposal struct {
	votes   map[string]Vote
	touched uint64
}

// AscensionVotes tallies per-proposal votes, one per voter with the latest
// vote winning. At most max proposals are kept; the least recently voted
// one makes room for a new proposal.
type AscensionVotes struct {
	quorum     float64
	max        int
	electorate Electorate
	proposals  map[string]*proposal
	seq        uint64
	mu         sync.RWMutex
}

// NewAscensionVotes creates a tally with the given quorum, DefaultQuorum when
// <= 0. A nil electorate lets anyone vote.
func NewAscensionVotes(quorum float64, electorate Electorate) *AscensionVotes {
	if quorum <= 0 {
		quorum = DefaultQuorum
	}
	return &AscensionVotes{
		quorum:     quorum,
		max:        DefaultMaxProposals,
		electorate: electorate,
		proposals:  make(map[string]*proposal),
	}
}

// SetMaxProposals changes the proposal bound. Values <= 0 are ignored.
func (a *AscensionVotes) SetMaxProposals(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.max = n
	a.mu.Unlock()
}

func verifyVote(v Vote) error {
	key := v.Key
	if key == "" {
		key = v.Voter
	}
	pub, err := signing.DecodeHex(key)
	if err != nil {
		return fmt.Errorf("%w: voter key: %v", ErrInvalidVote, err)
	}
	sig, err := signing.DecodeHex(v.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrInvalidVote, err)
	}
	if !signing.Verify(pub, VoteMessage(v.ProposalID, v.Choice), sig) {
		return fmt.Errorf("%w: bad signature from %s", ErrInvalidVote, key)
	}
	return nil
}

// Submit records v, replacing any earlier vote by the same voter. With an
// electorate, v is stored under the member it resolves to and votes from
// former members are dropped.
func (a *AscensionVotes) Submit(v Vote) error {
	if v.Voter == "" || v.ProposalID == "" {
		return fmt.Errorf("%w: voter and proposal are required", ErrInvalidVote)
	}
	switch v.Choice {
	case Approve, Oppose, Abstain:
	default:
		return fmt.Errorf("%w: choice %q", ErrInvalidVote, v.Choice)
	}
	if v.Signature != "" {
		if err := verifyVote(v); err != nil {
			return err
		}
	}
	var members map[string]bool
	if a.electorate != nil {
		member, ok := a.electorate.Resolve(v)
		if !ok {
			return fmt.Errorf("%w: %s is not eligible", ErrInvalidVote, v.Voter)
		}
		if member != v.Voter {
			if v.Key == "" {
				v.Key = v.Voter
			}
			v.Voter = member
		}
		members = make(map[string]bool)
		for _, m := range a.electorate.Members() {
			members[m] = true
		}
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.proposals[v.ProposalID]
	if !ok {
		if len(a.proposals) >= a.max {
			a.evictLocked()
		}
		p = &proposal{votes: make(map[string]Vote)}
		a.proposals[v.ProposalID] = p
	}
	if members != nil {
		for voter := range p.votes {
			if !members[voter] {
				delete(p.votes, voter)
			}
		}
	}
	a.seq++
	p.touched = a.seq
	p.votes[v.Voter] = v
	return nil
}

func (a *AscensionVotes) evictLocked() {
	var (
		oldest string
		at     uint64
	)
	for id, p := range a.proposals {
		if oldest == "" || p.touched < at {
			oldest, at = id, p.touched
		}
	}
	delete(a.proposals, oldest)
}

// Len is the number of tracked proposals.
func (a *AscensionVotes) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.proposals)
}

// Votes returns the proposal's votes ordered by voter.
func (a *AscensionVotes) Votes(proposalID string) []Vote {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.proposals[proposalID]
	if !ok {
		return nil
	}
	out := make([]Vote, 0, len(p.votes))
	for _, v := range p.votes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Voter < out[j].Voter })
	return out
}

// Result tallies a proposal. Only votes from members count, and the
// members are the eligible voters. It is approved when participation
// reaches the quorum and approvals outnumber rejections.
func (a *AscensionVotes) Result(proposalID string, members []string) ProposalResult {
	r := ProposalResult{ProposalID: proposalID}
	eligible := make(map[string]bool, len(members))
	for _, m := range members {
		eligible[m] = true
	}
	for _, v := range a.Votes(proposalID) {
		if !eligible[v.Voter] {
			continue
		}
		switch v.Choice {
		case Approve:
			r.Approve++
		case Oppose:
			r.Reject++
		default:
			r.Abstain++
		}
	}
	cast := r.Approve + r.Reject + r.Abstain
	if len(eligible) == 0 || cast == 0 {
		return r
	}
	r.Participation = float64(cast) / float64(len(eligible))
	if decided := r.Approve + r.Reject; decided > 0 {
		r.ApprovalRate = float64(r.Approve) / float64(decided)
	}
	r.Approved = r.Participation >= a.quorum && r.ApprovalRate > 0.5
	return r
}

// IsApproved is Result(...).Approved.
func (a *AscensionVotes) IsApproved(proposalID string, members []string) bool {
	return a.Result(proposalID, members).Approved
}
