package archon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/demiurge/internal/resonance"
)

// genesisRoot is the root of an empty journal.
const genesisRoot = "genesis"

// DefaultJournalSize bounds the retained journal entries.
const DefaultJournalSize = 1024

// JournalEntry is one hash-chained record of an executed improvement.
type JournalEntry struct {
	ID            string    `json:"entry_id"`
	ArtifactID    string    `json:"artifact_id"`
	Result        string    `json:"result"`
	Timestamp     time.Time `json:"timestamp"`
	MerkleReceipt string    `json:"merkle_receipt"`
	PreviousHash  string    `json:"previous_hash"`
}

// ImprovementJournal is an append-only hash chain that retains its most
// recent entries. The root folds in every entry ever appended; the
// checkpoint is the hash of the last entry that fell out of the window.
type ImprovementJournal struct {
	log        *resonance.Window
	root       string
	checkpoint string
	head       JournalEntry
	appended   uint64
	lastNs     int64
	mu         sync.RWMutex
}

// NewImprovementJournal creates an empty journal keeping at most size
// entries, DefaultJournalSize when size <= 0.
func NewImprovementJournal(size int) *ImprovementJournal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	return &ImprovementJournal{
		log:        resonance.NewWindow(size, resonance.DropOldest),
		root:       genesisRoot,
		checkpoint: genesisRoot,
	}
}

func hashEntry(e JournalEntry) string {
	h := sha256.New()
	h.Write([]byte(e.ID))
	h.Write([]byte(e.ArtifactID))
	h.Write([]byte(e.Result))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(e.Timestamp.Unix()))
	h.Write(b[:])
	h.Write([]byte(e.MerkleReceipt))
	return hex.EncodeToString(h.Sum(nil))
}

func entryRecord(e JournalEntry) resonance.Record {
	return resonance.Record{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Text:      e.Result,
		Labels: map[string]string{
			"artifact": e.ArtifactID,
			"receipt":  e.MerkleReceipt,
			"previous": e.PreviousHash,
		},
	}
}

func recordEntry(r resonance.Record) JournalEntry {
	return JournalEntry{
		ID:            r.ID,
		ArtifactID:    r.Labels["artifact"],
		Result:        r.Text,
		Timestamp:     r.Timestamp,
		MerkleReceipt: r.Labels["receipt"],
		PreviousHash:  r.Labels["previous"],
	}
}

// Append journals an execution and returns the entry ID.
func (j *ImprovementJournal) Append(artifactID, result string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()
	ns := now.UnixNano()
	if ns <= j.lastNs {
		ns = j.lastNs + 1
	}
	j.lastNs = ns
	id := fmt.Sprintf("entry_%d", ns)

	prev := genesisRoot
	if j.appended > 0 {
		prev = hashEntry(j.head)
	}

	rh := sha256.New()
	rh.Write([]byte(id))
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(now.Unix()))
	rh.Write(b[:])
	if j.appended > 0 {
		rh.Write([]byte(j.head.MerkleReceipt))
	}

	e := JournalEntry{
		ID:            id,
		ArtifactID:    artifactID,
		Result:        result,
		Timestamp:     now,
		MerkleReceipt: hex.EncodeToString(rh.Sum(nil)),
		PreviousHash:  prev,
	}
	if out := j.log.Add(entryRecord(e)); out != nil {
		j.checkpoint = hashEntry(recordEntry(*out))
	}
	j.head = e
	j.appended++

	root := sha256.New()
	root.Write([]byte(j.root))
	root.Write([]byte(hashEntry(e)))
	j.root = hex.EncodeToString(root.Sum(nil))
	return id
}

// Entries returns the retained entries, oldest first.
func (j *ImprovementJournal) Entries() []JournalEntry {
	recs := j.log.Records()
	out := make([]JournalEntry, len(recs))
	for i, r := range recs {
		out[i] = recordEntry(r)
	}
	return out
}

// Len is the number of retained entries.
func (j *ImprovementJournal) Len() int { return j.log.Len() }

// Appended counts every entry ever appended, retained or not.
func (j *ImprovementJournal) Appended() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.appended
}

// Root chains every entry hash onto "genesis".
func (j *ImprovementJournal) Root() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.root
}

// VerifyIntegrity walks the retained entries from the checkpoint, checking
// each back-link and that the chain ends at the latest append.
func (j *ImprovementJournal) VerifyIntegrity() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	entries := j.Entries()
	if len(entries) == 0 {
		return j.appended == 0
	}
	want := j.checkpoint
	for _, e := range entries {
		if e.PreviousHash != want {
			return false
		}
		want = hashEntry(e)
	}
	return want == hashEntry(j.head)
}
