package sdk

import "time"

// Amounts are decimal strings of base units (10^8 per CGT).

type ChainInfo struct {
	Height    uint64 `json:"height"`
	BlockHash string `json:"block_hash,omitempty"`
}

type Metadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	MaxSupply   string `json:"max_supply"`
	TotalSupply string `json:"total_supply"`
}

type Profile struct {
	Address         string   `json:"address"`
	DisplayName     string   `json:"display_name"`
	Bio             string   `json:"bio,omitempty"`
	Handle          string   `json:"handle,omitempty"`
	Level           uint32   `json:"level"`
	SyzygyScore     uint64   `json:"syzygy_score"`
	RewardsEarned   string   `json:"total_cgt_earned_from_rewards"`
	Badges          []string `json:"badges"`
	IsArchon        bool     `json:"is_archon"`
	CreatedAtHeight uint64   `json:"created_at_height"`
}

type Progress struct {
	Address               string  `json:"address"`
	Level                 uint32  `json:"level"`
	SyzygyScore           uint64  `json:"syzygy_score"`
	CurrentLevelThreshold uint64  `json:"current_level_threshold"`
	NextLevelThreshold    uint64  `json:"next_level_threshold"`
	ProgressRatio         float64 `json:"progress_ratio"`
	RewardsEarned         string  `json:"total_cgt_earned_from_rewards"`
}

type NFT struct {
	ID             uint64 `json:"id"`
	Owner          string `json:"owner"`
	Creator        string `json:"creator"`
	FabricRootHash string `json:"fabric_root_hash"`
	RoyaltyBps     uint16 `json:"royalty_bps"`
	Name           string `json:"name,omitempty"`
	MintedAtHeight uint64 `json:"minted_at_height"`
}

type Listing struct {
	ID              uint64 `json:"id"`
	TokenID         uint64 `json:"token_id"`
	Seller          string `json:"seller"`
	Price           string `json:"price"`
	Status          string `json:"status"`
	CreatedAtHeight uint64 `json:"created_at_height"`
	Buyer           string `json:"buyer,omitempty"`
}

// Transaction is an executed transaction as served by cgt_getTransaction.
type Transaction struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Nonce     uint64    `json:"nonce"`
	ModuleID  string    `json:"module_id"`
	CallID    string    `json:"call_id"`
	Payload   string    `json:"payload"`
	Fee       uint64    `json:"fee"`
	Signature string    `json:"signature"`
	System    bool      `json:"system"`
	Height    uint64    `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

type SendResult struct {
	Accepted bool   `json:"accepted"`
	TxHash   string `json:"tx_hash"`
}

type FaucetResult struct {
	OK         bool   `json:"ok"`
	NewBalance string `json:"new_balance"`
}

type UnsignedTx struct {
	TxHex string `json:"tx_hex"`
}

// WorkClaimTx is an unsigned work claim with the reward it would mint.
type WorkClaimTx struct {
	TxHex          string `json:"tx_hex"`
	RewardEstimate string `json:"reward_estimate"`
}

// FabricAsset is an anchored fabric root and its seeder pool.
type FabricAsset struct {
	FabricRootHash string `json:"fabric_root_hash"`
	Owner          string `json:"owner"`
	PoolTotal      string `json:"pool_total"`
	PoolRemaining  string `json:"pool_remaining"`
}

// StateVector mirrors a node's archon heartbeat.
type StateVector struct {
	RuntimeVersion       string `json:"runtime_version"`
	StateRoot            string `json:"state_root"`
	NodeID               string `json:"node_id"`
	InvariantsOK         bool   `json:"invariants_ok"`
	IntegrityHash        string `json:"integrity_hash"`
	BlockHeight          uint64 `json:"block_height"`
	Timestamp            uint64 `json:"timestamp"`
	RuntimeRegistryHash  string `json:"runtime_registry_hash"`
	SDKCompatibilityHash string `json:"sdk_compatibility_hash"`
	SovereigntySealHash  string `json:"sovereignty_seal_hash"`
}

type Directive struct {
	Code        string `json:"code"`
	Detail      string `json:"detail,omitempty"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

type Heartbeat struct {
	Height     uint64      `json:"height"`
	Directives []Directive `json:"directives"`
	Remotes    int         `json:"remotes"`
	Timestamp  time.Time   `json:"timestamp"`
}

type DiagnosticTest struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Result   string `json:"result"`
	Message  string `json:"message,omitempty"`
}

type CoreState struct {
	ArchonID          string  `json:"archon_id"`
	Consciousness     float64 `json:"consciousness_level"`
	Coherence         float64 `json:"coherence"`
	Stability         float64 `json:"stability"`
	NodeParticipation int     `json:"node_participation"`
	Awakened          bool    `json:"awakened"`
}

type ArchonState struct {
	StateVector *StateVector     `json:"state_vector"`
	Health      string           `json:"health"`
	HealthScore float64          `json:"health_score"`
	Core        CoreState        `json:"core"`
	Diagnostics []DiagnosticTest `json:"diagnostics"`
	Peers       int              `json:"peers"`
	JournalRoot string           `json:"journal_root"`
}

type MeshNode struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Health   float64   `json:"health"`
	LastSeen time.Time `json:"last_seen"`
}

type MeshLink struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Resonance float64 `json:"resonance"`
	Quality   string  `json:"quality"`
	LatencyMS uint64  `json:"latency_ms"`
}

type Topology struct {
	NodeCount     int        `json:"node_count"`
	LinkCount     int        `json:"link_count"`
	AverageDegree float64    `json:"average_degree"`
	Connectivity  float64    `json:"connectivity"`
	Entropy       float64    `json:"entropy"`
	Stability     float64    `json:"stability"`
	Convergence   string     `json:"convergence"`
	Nodes         []MeshNode `json:"nodes"`
	Links         []MeshLink `json:"links"`
}

type Anomaly struct {
	Type        string    `json:"type"`
	Severity    float64   `json:"severity"`
	Subsystem   string    `json:"subsystem"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Chamber struct {
	ID         string  `json:"chamber_id"`
	Memories   int     `json:"memories"`
	Importance float64 `json:"importance"`
}

type Memory struct {
	ID          string    `json:"id"`
	Chamber     string    `json:"chamber"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Importance  float64   `json:"importance"`
	AccessCount uint64    `json:"access_count"`
}

type JournalEntry struct {
	ID            string    `json:"entry_id"`
	ArtifactID    string    `json:"artifact_id"`
	Result        string    `json:"result"`
	Timestamp     time.Time `json:"timestamp"`
	MerkleReceipt string    `json:"merkle_receipt"`
	PreviousHash  string    `json:"previous_hash"`
}

type Journal struct {
	Root     string         `json:"root"`
	Verified bool           `json:"verified"`
	Entries  []JournalEntry `json:"entries"`
}

// Vote is an ascension vote. Choice is "approve", "reject" or "abstain";
// a set Signature must be the voter key's signature over VoteMessage. The
// node records a vote signed by its genesis archon key under its own node
// ID and keeps the signing key in Key.
type Vote struct {
	Voter      string    `json:"voter"`
	ProposalID string    `json:"proposal_id"`
	Choice     string    `json:"choice"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	Key        string    `json:"key,omitempty"`
}

type Proposal struct {
	ProposalID    string  `json:"proposal_id"`
	Approve       int     `json:"approve"`
	Reject        int     `json:"reject"`
	Abstain       int     `json:"abstain"`
	Participation float64 `json:"participation"`
	ApprovalRate  float64 `json:"approval_rate"`
	Approved      bool    `json:"approved"`
	Votes         []Vote  `json:"votes"`
}
