package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/resonance"
	"go.uber.org/zap"
)

const (
	defaultMempoolSize  = 1000
	recentBlocks        = 256
	DefaultHistoryLimit = 50
	RuntimeVersion      = "demiurge-runtime/1"
)

// Event topics emitted through Publisher.
const (
	TopicTransaction = "tx"
	TopicBlock       = "block"
)

// Config holds node parameters.
type Config struct {
	NodeID          string
	DevMode         bool
	GenesisArchon   Address
	GenesisName     string
	GenesisBalance  *big.Int
	DevFaucetAmount *big.Int
	MempoolSize     int
	RuntimeVersion  string
}

// TxRecord is an executed transaction as stored and served.
type TxRecord struct {
	Seq       uint64       `json:"seq"`
	Hash      string       `json:"hash"`
	Raw       string       `json:"raw"`
	Tx        *Transaction `json:"-"`
	System    bool         `json:"system"`
	From      Address      `json:"from"`
	To        *Address     `json:"to,omitempty"`
	ModuleID  string       `json:"module_id"`
	CallID    string       `json:"call_id"`
	Nonce     uint64       `json:"nonce"`
	Fee       uint64       `json:"fee"`
	Height    uint64       `json:"height"`
	Timestamp time.Time    `json:"timestamp"`
}

// Block seals the transactions executed since the previous block.
type Block struct {
	Height    uint64    `json:"height"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash"`
	StateRoot string    `json:"state_root"`
	TxHashes  []string  `json:"tx_hashes"`
	Timestamp time.Time `json:"timestamp"`
}

// ChainInfo is the chain head.
type ChainInfo struct {
	Height    uint64 `json:"height"`
	BlockHash string `json:"block_hash"`
}

// Journal persists executed transactions and blocks.
type Journal interface {
	AppendTx(ctx context.Context, rec *TxRecord) error
	AppendBlock(ctx context.Context, b *Block) error
	// Load returns every transaction in execution order and the latest block.
	Load(ctx context.Context) ([]*TxRecord, *Block, error)
}

// Publisher fans out chain events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type replayKey struct {
	from  Address
	nonce uint64
}

// Node is a single-node CGT chain: it executes transactions immediately and
// seals them into blocks on each clock tick.
type Node struct {
	cfg     Config
	runtime *Runtime

	ledger    *Ledger
	height    uint64
	lastHash  [32]byte
	lastBlock *Block
	blocks    *resonance.Window // ID is the height, Text the block JSON
	mempool   *resonance.Window
	txs       map[string]*TxRecord
	history   map[Address][]string
	seen      map[replayKey]struct{}
	seq       uint64
	sysSeq    uint64

	journal   Journal
	publisher Publisher
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewNode creates a node with an empty ledger.
func NewNode(cfg Config, logger *zap.Logger) *Node {
	if cfg.MempoolSize <= 0 {
		cfg.MempoolSize = defaultMempoolSize
	}
	if cfg.RuntimeVersion == "" {
		cfg.RuntimeVersion = RuntimeVersion
	}
	if cfg.GenesisName == "" {
		cfg.GenesisName = "Prime Archon"
	}
	return &Node{
		cfg:     cfg,
		runtime: NewRuntime(),
		ledger:  NewLedger(),
		mempool: resonance.NewWindow(cfg.MempoolSize, resonance.DropOldest),
		blocks:  resonance.NewWindow(recentBlocks, resonance.DropOldest),
		txs:     make(map[string]*TxRecord),
		history: make(map[Address][]string),
		seen:    make(map[replayKey]struct{}),
		logger:  logger,
	}
}

// SetJournal attaches a persister.
func (n *Node) SetJournal(j Journal) { n.journal = j }

// SetPublisher attaches an event sink.
func (n *Node) SetPublisher(p Publisher) { n.publisher = p }

// Config returns the node configuration.
func (n *Node) Config() Config { return n.cfg }

// Runtime returns the call registry.
func (n *Node) Runtime() *Runtime { return n.runtime }

// Genesis seeds the ledger and seals block 0. It is a no-op once the chain
// has a block.
func (n *Node) Genesis(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastBlock != nil {
		return nil
	}

	archon := n.cfg.GenesisArchon
	if !archon.IsZero() {
		if n.cfg.GenesisBalance != nil && n.cfg.GenesisBalance.Sign() > 0 {
			if _, err := n.applySystemLocked(ctx, ModuleBank, CallMintTo, MintParams{To: archon, Amount: n.cfg.GenesisBalance.String()}); err != nil {
				return fmt.Errorf("genesis mint: %w", err)
			}
		}
		if _, err := n.applySystemLocked(ctx, ModuleUrgeID, CallCreate, SystemProfileParams{Address: archon, DisplayName: n.cfg.GenesisName}); err != nil {
			return fmt.Errorf("genesis profile: %w", err)
		}
		if _, err := n.applySystemLocked(ctx, ModuleUrgeID, CallClaimArchon, ArchonParams{Address: archon}); err != nil {
			return fmt.Errorf("genesis archon: %w", err)
		}
	}

	if _, err := n.sealLocked(ctx, true); err != nil {
		return err
	}
	n.logger.Info("genesis sealed",
		zap.String("archon", archon.String()),
		zap.String("hash", n.lastBlock.Hash))
	return nil
}

// Restore rebuilds state by replaying the journal. It returns false when the
// journal is empty.
func (n *Node) Restore(ctx context.Context) (bool, error) {
	if n.journal == nil {
		return false, nil
	}
	recs, last, err := n.journal.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load journal: %w", err)
	}
	if last == nil && len(recs) == 0 {
		return false, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, rec := range recs {
		tx := rec.Tx
		if tx == nil {
			if tx, err = DecodeTransactionHex(rec.Raw); err != nil {
				return false, fmt.Errorf("replay %s: %w", rec.Hash, err)
			}
		}
		var next *Ledger
		if rec.System {
			next, err = n.runtime.ApplySystem(n.ledger, tx, rec.Height)
			if tx.Nonce >= n.sysSeq {
				n.sysSeq = tx.Nonce + 1
			}
		} else {
			next, err = n.runtime.Apply(n.ledger, tx, rec.Height)
		}
		if err != nil {
			return false, fmt.Errorf("replay %s: %w", rec.Hash, err)
		}
		n.ledger = next
		rec.Tx = tx
		n.indexLocked(rec)
		if rec.Seq >= n.seq {
			n.seq = rec.Seq + 1
		}
	}
	if last != nil {
		raw, err := hex.DecodeString(last.Hash)
		if err != nil || len(raw) != 32 {
			return false, fmt.Errorf("restore block hash %q: invalid", last.Hash)
		}
		n.height = last.Height
		n.lastHash = [32]byte(raw)
		n.lastBlock = last
		n.rememberLocked(last)
	}
	// Anything executed after the last block is sealed on the next tick.
	for _, rec := range recs {
		if last == nil || rec.Height > n.height {
			n.mempool.Add(resonance.Record{ID: rec.Hash, Timestamp: rec.Timestamp, Score: 1})
		}
	}
	n.logger.Info("chain restored",
		zap.Int("transactions", len(recs)),
		zap.Uint64("height", n.height))
	return true, nil
}

// SubmitTransaction verifies and executes a signed transaction and returns
// its hash. The transaction is sealed into the next block.
func (n *Node) SubmitTransaction(ctx context.Context, tx *Transaction) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := replayKey{from: tx.From, nonce: tx.Nonce}
	if _, dup := n.seen[key]; dup {
		return "", fmt.Errorf("%w: %s nonce %d", ErrReplay, tx.From, tx.Nonce)
	}

	n.makeRoomLocked(ctx)
	next, err := n.runtime.Apply(n.ledger, tx, n.nextHeightLocked())
	if err != nil {
		n.logger.Debug("transaction rejected",
			zap.String("from", tx.From.String()),
			zap.String("call", callKey(tx.ModuleID, tx.CallID)),
			zap.Error(err))
		return "", err
	}
	rec, err := n.recordLocked(tx, false)
	if err != nil {
		return "", err
	}
	n.ledger = next
	n.commitLocked(ctx, rec)
	return rec.Hash, nil
}

// SubmitRaw decodes a hex transaction and submits it.
func (n *Node) SubmitRaw(ctx context.Context, txHex string) (string, error) {
	tx, err := DecodeTransactionHex(txHex)
	if err != nil {
		return "", err
	}
	return n.SubmitTransaction(ctx, tx)
}

func (n *Node) applySystemLocked(ctx context.Context, module, call string, params any) (*TxRecord, error) {
	tx, err := NewTransaction(GenesisAuthority, n.sysSeq, module, call, params, 0)
	if err != nil {
		return nil, err
	}
	n.makeRoomLocked(ctx)
	next, err := n.runtime.ApplySystem(n.ledger, tx, n.nextHeightLocked())
	if err != nil {
		return nil, err
	}
	rec, err := n.recordLocked(tx, true)
	if err != nil {
		return nil, err
	}
	n.sysSeq++
	n.ledger = next
	n.commitLocked(ctx, rec)
	return rec, nil
}

func (n *Node) recordLocked(tx *Transaction, system bool) (*TxRecord, error) {
	raw, err := tx.EncodeHex()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	hash, err := tx.HashHex()
	if err != nil {
		return nil, fmt.Errorf("hash transaction: %w", err)
	}
	rec := &TxRecord{
		Seq:       n.seq,
		Hash:      hash,
		Raw:       raw,
		Tx:        tx,
		System:    system,
		From:      tx.From,
		ModuleID:  tx.ModuleID,
		CallID:    tx.CallID,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Height:    n.nextHeightLocked(),
		Timestamp: time.Now().UTC(),
	}
	rec.To = recipient(tx)
	return rec, nil
}

// recipient extracts the counterparty a call moves value or identity to.
func recipient(tx *Transaction) *Address {
	var to Address
	switch callKey(tx.ModuleID, tx.CallID) {
	case callKey(ModuleBank, CallTransfer):
		var p TransferParams
		if tx.DecodePayload(&p) != nil {
			return nil
		}
		to = p.To
	case callKey(ModuleBank, CallMintTo):
		var p MintParams
		if tx.DecodePayload(&p) != nil {
			return nil
		}
		to = p.To
	case callKey(ModuleUrgeID, CallRecordSyzygy):
		var p RecordSyzygyParams
		if tx.DecodePayload(&p) != nil {
			return nil
		}
		to = p.Address
	case callKey(ModuleNFT, CallMint):
		var p MintNFTParams
		if tx.DecodePayload(&p) != nil || p.Owner.IsZero() {
			return nil
		}
		to = p.Owner
	default:
		return nil
	}
	return &to
}

func (n *Node) indexLocked(rec *TxRecord) {
	n.txs[rec.Hash] = rec
	if !rec.System {
		n.seen[replayKey{from: rec.From, nonce: rec.Nonce}] = struct{}{}
		n.history[rec.From] = append(n.history[rec.From], rec.Hash)
	}
	if rec.To != nil && (rec.System || *rec.To != rec.From) {
		n.history[*rec.To] = append(n.history[*rec.To], rec.Hash)
	}
}

func (n *Node) commitLocked(ctx context.Context, rec *TxRecord) {
	n.seq++
	n.indexLocked(rec)
	n.mempool.Add(resonance.Record{ID: rec.Hash, Timestamp: rec.Timestamp, Score: 1})

	if n.journal != nil {
		if err := n.journal.AppendTx(ctx, rec); err != nil {
			n.logger.Error("journal transaction", zap.String("hash", rec.Hash), zap.Error(err))
		}
	}
	n.publish(ctx, TopicTransaction, rec)
	n.logger.Debug("transaction executed",
		zap.String("hash", rec.Hash),
		zap.String("call", callKey(rec.ModuleID, rec.CallID)),
		zap.Bool("system", rec.System))
}

// nextHeightLocked is the height of the block the next transaction lands in.
func (n *Node) nextHeightLocked() uint64 {
	if n.lastBlock == nil {
		return 0
	}
	return n.height + 1
}

// makeRoomLocked seals early when the mempool is full.
func (n *Node) makeRoomLocked(ctx context.Context) {
	if n.lastBlock == nil || n.mempool.Len() < n.mempool.Max() {
		return
	}
	if _, err := n.sealLocked(ctx, false); err != nil {
		n.logger.Error("seal full mempool", zap.Error(err))
	}
}

func (n *Node) publish(ctx context.Context, topic string, payload any) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, topic, payload); err != nil {
		n.logger.Warn("publish event", zap.String("topic", topic), zap.Error(err))
	}
}

// ProduceBlock seals the mempool into a new block.
func (n *Node) ProduceBlock(ctx context.Context) (*Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sealLocked(ctx, false)
}

func (n *Node) sealLocked(ctx context.Context, genesis bool) (*Block, error) {
	root, err := n.ledger.StateRoot()
	if err != nil {
		return nil, err
	}
	height := n.height + 1
	if genesis {
		height = 0
	}

	pending := n.mempool.Records()
	hashes := make([]string, 0, len(pending))
	h := sha256.New()
	h.Write(n.lastHash[:])
	var hb [8]byte
	binary.LittleEndian.PutUint64(hb[:], height)
	h.Write(hb[:])
	h.Write(root[:])
	for _, r := range pending {
		raw, err := hex.DecodeString(r.ID)
		if err != nil {
			return nil, fmt.Errorf("mempool entry %q: %w", r.ID, err)
		}
		h.Write(raw)
		hashes = append(hashes, r.ID)
	}
	hash := [32]byte(h.Sum(nil))

	b := &Block{
		Height:    height,
		Hash:      hex.EncodeToString(hash[:]),
		PrevHash:  hex.EncodeToString(n.lastHash[:]),
		StateRoot: hex.EncodeToString(root[:]),
		TxHashes:  hashes,
		Timestamp: time.Now().UTC(),
	}
	n.height = height
	n.lastHash = hash
	n.lastBlock = b
	n.rememberLocked(b)
	n.mempool.Reset()

	if n.journal != nil {
		if err := n.journal.AppendBlock(ctx, b); err != nil {
			n.logger.Error("journal block", zap.Uint64("height", height), zap.Error(err))
		}
	}
	n.publish(ctx, TopicBlock, b)
	n.logger.Debug("block sealed",
		zap.Uint64("height", height),
		zap.Int("txs", len(hashes)))
	return b, nil
}

func (n *Node) rememberLocked(b *Block) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	n.blocks.Add(resonance.Record{ID: strconv.FormatUint(b.Height, 10), Timestamp: b.Timestamp, Score: 1, Text: string(raw)})
}

// OnTick produces a block on every clock tick.
func (n *Node) OnTick(_ time.Time) {
	if _, err := n.ProduceBlock(context.Background()); err != nil {
		n.logger.Error("produce block", zap.Error(err))
	}
}

// DevFaucet mints the configured faucet amount to a. Dev mode only.
func (n *Node) DevFaucet(ctx context.Context, a Address) (*big.Int, error) {
	if !n.cfg.DevMode {
		return nil, ErrDevModeDisabled
	}
	if a.IsZero() {
		return nil, fmt.Errorf("%w: faucet to genesis authority", ErrInvalidAddress)
	}
	amount := n.cfg.DevFaucetAmount
	if amount == nil || amount.Sign() <= 0 {
		amount = CGT(1000)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.applySystemLocked(ctx, ModuleBank, CallMintTo, MintParams{To: a, Amount: amount.String()}); err != nil {
		return nil, err
	}
	return n.ledger.Balance(a), nil
}

// DevCreateProfile registers a profile for a without a signature. Dev mode only.
func (n *Node) DevCreateProfile(ctx context.Context, a Address, displayName, bio string) (*Profile, error) {
	if !n.cfg.DevMode {
		return nil, ErrDevModeDisabled
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.applySystemLocked(ctx, ModuleUrgeID, CallCreate, SystemProfileParams{Address: a, DisplayName: displayName, Bio: bio}); err != nil {
		return nil, err
	}
	p, _ := n.ledger.Profile(a)
	return p, nil
}

// Queries.

func (n *Node) ChainInfo() ChainInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return ChainInfo{Height: n.height, BlockHash: hex.EncodeToString(n.lastHash[:])}
}

// LatestBlock returns the most recent block, or nil before genesis.
func (n *Node) LatestBlock() *Block {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.lastBlock == nil {
		return nil
	}
	b := *n.lastBlock
	b.TxHashes = append([]string(nil), n.lastBlock.TxHashes...)
	return &b
}

func (n *Node) Balance(a Address) *big.Int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Balance(a)
}

func (n *Node) Nonce(a Address) uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Nonce(a)
}

func (n *Node) TotalSupply() *big.Int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.TotalSupply()
}

func (n *Node) IsArchon(a Address) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.IsArchon(a)
}

func (n *Node) Profile(a Address) (*Profile, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Profile(a)
}

func (n *Node) ProfileByHandle(h string) (*Profile, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.ProfileByHandle(h)
}

func (n *Node) Progress(a Address) (*Progress, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Progress(a)
}

func (n *Node) NFTsByOwner(a Address) []*NFT {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.NFTsByOwner(a)
}

func (n *Node) ActiveListings() []*Listing {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.ActiveListings()
}

func (n *Node) Listing(id uint64) (*Listing, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Listing(id)
}

func (n *Node) FabricAsset(root [32]byte) (*FabricAsset, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.FabricAsset(root)
}

func (n *Node) ClaimSubmitted(a Address, gameID, sessionID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.ClaimSubmitted(a, gameID, sessionID)
}

// BlockByHeight returns one of the recently sealed blocks.
func (n *Node) BlockByHeight(height uint64) (*Block, error) {
	rec, ok := n.blocks.Get(strconv.FormatUint(height, 10))
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	var b Block
	if err := json.Unmarshal([]byte(rec.Text), &b); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", height, err)
	}
	return &b, nil
}

// TransactionByHash looks up an executed transaction, 0x prefix optional.
func (n *Node) TransactionByHash(hash string) (*TxRecord, error) {
	raw, err := hexKey(hash)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	rec, ok := n.txs[raw]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash)
	}
	cp := *rec
	return &cp, nil
}

func hexKey(s string) (string, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != sha256.Size {
		return "", fmt.Errorf("%w: malformed hash %q", ErrTxNotFound, s)
	}
	return hex.EncodeToString(b), nil
}

// TransactionsForAddress returns the newest transactions touching a, newest
// first. limit <= 0 means DefaultHistoryLimit.
func (n *Node) TransactionsForAddress(a Address, limit int) []*TxRecord {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	hashes := n.history[a]
	out := make([]*TxRecord, 0, min(limit, len(hashes)))
	for i := len(hashes) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *n.txs[hashes[i]]
		out = append(out, &cp)
	}
	return out
}

// StateRoot hashes the current ledger.
func (n *Node) StateRoot() ([32]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.StateRoot()
}

// VerifyInvariants checks ledger invariants and that the head block's root
// matches the ledger when nothing is pending.
func (n *Node) VerifyInvariants() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if err := n.ledger.VerifyInvariants(); err != nil {
		return err
	}
	if n.lastBlock != nil && n.lastBlock.Height != n.height {
		return fmt.Errorf("invariant: head block %d != height %d", n.lastBlock.Height, n.height)
	}
	return nil
}

// PendingCount is the number of executed transactions awaiting a block.
func (n *Node) PendingCount() int { return n.mempool.Len() }
