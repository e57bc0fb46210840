package resonance

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMax is the capacity used when a window is created with max <= 0.
const DefaultMax = 1000

// Policy selects which record a full window evicts.
type Policy int

const (
	// DropOldest evicts the earliest inserted record.
	DropOldest Policy = iota
	// DropLowest evicts the lowest-scored record, oldest first on ties.
	DropLowest
)

func (p Policy) String() string {
	if p == DropLowest {
		return "drop_lowest"
	}
	return "drop_oldest"
}

// Record is a scored sample held by a Window.
type Record struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Score     float64           `json:"score"`
	Text      string            `json:"text,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Window is a bounded, insertion-ordered collection of records.
type Window struct {
	max     int
	policy  Policy
	records []Record
	mu      sync.RWMutex
}

// NewWindow creates a window holding at most max records.
func NewWindow(max int, policy Policy) *Window {
	if max <= 0 {
		max = DefaultMax
	}
	return &Window{max: max, policy: policy}
}

// Add inserts rec, assigning an ID and timestamp when empty and clamping the
// score. It returns the evicted record, if any.
func (w *Window) Add(rec Record) *Record {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Score = Clamp(rec.Score)

	w.mu.Lock()
	defer w.mu.Unlock()

	var evicted *Record
	if len(w.records) >= w.max {
		idx := w.victim()
		if w.policy == DropLowest && w.records[idx].Score > rec.Score {
			// The newcomer is the lowest; it is the one that does not fit.
			r := rec
			return &r
		}
		r := w.records[idx]
		evicted = &r
		w.records = append(w.records[:idx], w.records[idx+1:]...)
	}
	w.records = append(w.records, rec)
	return evicted
}

func (w *Window) victim() int {
	if w.policy == DropOldest {
		return 0
	}
	low := 0
	for i := 1; i < len(w.records); i++ {
		if w.records[i].Score < w.records[low].Score {
			low = i
		}
	}
	return low
}

// Len returns the number of stored records.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.records)
}

// Max returns the capacity.
func (w *Window) Max() int { return w.max }

// Records returns a copy of all records, oldest first.
func (w *Window) Records() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Record, len(w.records))
	copy(out, w.records)
	return out
}

// Last returns up to n of the most recent records, oldest first.
func (w *Window) Last(n int) []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 || n > len(w.records) {
		n = len(w.records)
	}
	out := make([]Record, n)
	copy(out, w.records[len(w.records)-n:])
	return out
}

// Mean returns the mean score, or 0 for an empty window.
func (w *Window) Mean() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range w.records {
		sum += r.Score
	}
	return sum / float64(len(w.records))
}

// Get returns the record with the given ID.
func (w *Window) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, r := range w.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Update applies fn to the record with the given ID. The score is re-clamped.
func (w *Window) Update(id string, fn func(*Record)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.records {
		if w.records[i].ID == id {
			fn(&w.records[i])
			w.records[i].ID = id
			w.records[i].Score = Clamp(w.records[i].Score)
			return true
		}
	}
	return false
}

// Remove deletes the record with the given ID.
func (w *Window) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.records {
		if w.records[i].ID == id {
			w.records = append(w.records[:i], w.records[i+1:]...)
			return true
		}
	}
	return false
}

// Reset drops every record.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = nil
}
