package archon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/demiurge/internal/resonance"
	"go.uber.org/zap"
)

// DefaultChamberSize bounds each chamber.
const DefaultChamberSize = 1000

// Chambers the node itself files into.
const (
	ChamberDirectives = "directives"
	ChamberAnomalies  = "anomalies"
)

// Memory is one remembered item. Importance is in [0,1].
type Memory struct {
	ID          string    `json:"id"`
	Chamber     string    `json:"chamber"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Importance  float64   `json:"importance"`
	AccessCount uint64    `json:"access_count"`
}

// ChamberInfo summarizes a chamber.
type ChamberInfo struct {
	ID         string  `json:"chamber_id"`
	Memories   int     `json:"memories"`
	Importance float64 `json:"importance"`
}

// RecallHit is a semantic match returned by a RecallIndex.
type RecallHit struct {
	Chamber  string
	MemoryID string
	Score    float32
}

// RecallIndex is an optional semantic index over memories.
type RecallIndex interface {
	Index(ctx context.Context, m Memory) error
	Search(ctx context.Context, query string, limit int) ([]RecallHit, error)
	Forget(ctx context.Context, memoryID string) error
}

type chamber struct {
	window   *resonance.Window
	accesses map[string]uint64
}

// MemoryPalace stores memories in chambers that keep only the most important.
type MemoryPalace struct {
	max      int
	chambers map[string]*chamber
	index    RecallIndex
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewMemoryPalace creates a palace with max memories per chamber.
func NewMemoryPalace(max int, logger *zap.Logger) *MemoryPalace {
	if max <= 0 {
		max = DefaultChamberSize
	}
	return &MemoryPalace{max: max, chambers: make(map[string]*chamber), logger: logger}
}

// SetIndex attaches a semantic recall index.
func (p *MemoryPalace) SetIndex(idx RecallIndex) { p.index = idx }

// Store files m into its chamber. When the chamber is full the least
// important memory, possibly m itself, is dropped and returned.
func (p *MemoryPalace) Store(ctx context.Context, m Memory) (stored Memory, evicted *Memory) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	m.Importance = resonance.Clamp(m.Importance)

	p.mu.Lock()
	c, ok := p.chambers[m.Chamber]
	if !ok {
		c = &chamber{window: resonance.NewWindow(p.max, resonance.DropLowest), accesses: make(map[string]uint64)}
		p.chambers[m.Chamber] = c
	}
	out := c.window.Add(resonance.Record{ID: m.ID, Timestamp: m.Timestamp, Score: m.Importance, Text: m.Content})
	if out != nil {
		ev := Memory{ID: out.ID, Chamber: m.Chamber, Content: out.Text, Timestamp: out.Timestamp, Importance: out.Score, AccessCount: c.accesses[out.ID]}
		delete(c.accesses, out.ID)
		evicted = &ev
	}
	p.mu.Unlock()

	if p.index == nil || (evicted != nil && evicted.ID == m.ID) {
		return m, evicted
	}
	if err := p.index.Index(ctx, m); err != nil {
		p.logger.Warn("index memory", zap.String("chamber", m.Chamber), zap.Error(err))
	}
	if evicted != nil {
		if err := p.index.Forget(ctx, evicted.ID); err != nil {
			p.logger.Warn("forget memory", zap.String("memory_id", evicted.ID), zap.Error(err))
		}
	}
	return m, evicted
}

// Retrieve returns a memory and counts the access.
func (p *MemoryPalace) Retrieve(chamberID, memoryID string) (Memory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.chambers[chamberID]
	if !ok {
		return Memory{}, false
	}
	rec, ok := c.window.Get(memoryID)
	if !ok {
		return Memory{}, false
	}
	c.accesses[memoryID]++
	return Memory{
		ID:          rec.ID,
		Chamber:     chamberID,
		Content:     rec.Text,
		Timestamp:   rec.Timestamp,
		Importance:  rec.Score,
		AccessCount: c.accesses[memoryID],
	}, true
}

// Chambers lists chambers with their mean importance, sorted by ID.
func (p *MemoryPalace) Chambers() []ChamberInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChamberInfo, 0, len(p.chambers))
	for id, c := range p.chambers {
		out = append(out, ChamberInfo{ID: id, Memories: c.window.Len(), Importance: c.window.Mean()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recall finds memories semantically close to query. Hits for memories that
// have since been evicted are skipped.
func (p *MemoryPalace) Recall(ctx context.Context, query string, limit int) ([]Memory, error) {
	if p.index == nil {
		return nil, fmt.Errorf("memory recall: no index configured")
	}
	hits, err := p.index.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("memory recall: %w", err)
	}
	out := make([]Memory, 0, len(hits))
	for _, h := range hits {
		if m, ok := p.Retrieve(h.Chamber, h.MemoryID); ok {
			out = append(out, m)
		}
	}
	return out, nil
}
