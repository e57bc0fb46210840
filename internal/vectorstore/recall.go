package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/embedding"
	"go.uber.org/zap"
)

// Point is one indexed memory vector.
type Point struct {
	MemoryID string
	Chamber  string
	Vector   []float32
}

// Hit is a nearest-neighbour match.
type Hit struct {
	MemoryID string
	Chamber  string
	Score    float32
}

// Backend is a vector collection Recall writes memories to.
type Backend interface {
	EnsureCollection(ctx context.Context, dimension uint64) error
	Upsert(ctx context.Context, p Point) error
	Delete(ctx context.Context, memoryID string) error
	Search(ctx context.Context, vector []float32, limit uint64) ([]Hit, error)
}

// Recall is a semantic index over palace memories.
type Recall struct {
	backend  Backend
	embedder embedding.Provider

	once    sync.Once
	initErr error
	logger  *zap.Logger
}

var _ archon.RecallIndex = (*Recall)(nil)

// NewRecall creates an index. The collection is created lazily on first use.
func NewRecall(backend Backend, embedder embedding.Provider, logger *zap.Logger) *Recall {
	return &Recall{backend: backend, embedder: embedder, logger: logger}
}

func (r *Recall) ensure(ctx context.Context) error {
	r.once.Do(func() {
		dim := r.embedder.Dimension()
		if dim <= 0 {
			r.initErr = fmt.Errorf("recall: embedder reports no dimension")
			return
		}
		r.initErr = r.backend.EnsureCollection(ctx, uint64(dim))
		if r.initErr == nil {
			r.logger.Info("recall collection ready", zap.Int("dimension", dim))
		}
	})
	return r.initErr
}

func (r *Recall) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("recall: embedder returned %d vectors", len(vecs))
	}
	return vecs[0], nil
}

// Index embeds the memory content and upserts it under the memory ID.
func (r *Recall) Index(ctx context.Context, m archon.Memory) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	vec, err := r.embed(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("recall index %s: %w", m.ID, err)
	}
	return r.backend.Upsert(ctx, Point{MemoryID: m.ID, Chamber: m.Chamber, Vector: vec})
}

// Forget drops an evicted memory from the index.
func (r *Recall) Forget(ctx context.Context, memoryID string) error {
	if err := r.ensure(ctx); err != nil {
		return err
	}
	return r.backend.Delete(ctx, memoryID)
}

// Search returns the memories nearest to query, best first.
func (r *Recall) Search(ctx context.Context, query string, limit int) ([]archon.RecallHit, error) {
	if limit <= 0 {
		limit = 10
	}
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall search: %w", err)
	}
	found, err := r.backend.Search(ctx, vec, uint64(limit))
	if err != nil {
		return nil, err
	}
	hits := make([]archon.RecallHit, len(found))
	for i, h := range found {
		hits[i] = archon.RecallHit{Chamber: h.Chamber, MemoryID: h.MemoryID, Score: h.Score}
	}
	return hits, nil
}
