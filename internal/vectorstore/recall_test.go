package vectorstore

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/embedding"
	"go.uber.org/zap"
)

type memBackend struct {
	dimension   uint64
	points      map[string]Point
	ensureCalls int
	failEnsure  bool
}

func newMemBackend() *memBackend {
	return &memBackend{points: make(map[string]Point)}
}

func (b *memBackend) EnsureCollection(_ context.Context, dim uint64) error {
	b.ensureCalls++
	if b.failEnsure {
		return errors.New("unavailable")
	}
	b.dimension = dim
	return nil
}

func (b *memBackend) Upsert(_ context.Context, p Point) error {
	b.points[p.MemoryID] = p
	return nil
}

func (b *memBackend) Delete(_ context.Context, memoryID string) error {
	delete(b.points, memoryID)
	return nil
}

func (b *memBackend) Search(_ context.Context, vector []float32, limit uint64) ([]Hit, error) {
	var out []Hit
	for _, p := range b.points {
		var dot float32
		for i := range vector {
			dot += vector[i] * p.Vector[i]
		}
		out = append(out, Hit{MemoryID: p.MemoryID, Chamber: p.Chamber, Score: dot})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestRecallThroughPalace(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	idx := NewRecall(backend, embedding.NewHashProvider(64), zap.NewNop())

	palace := archon.NewMemoryPalace(10, zap.NewNop())
	palace.SetIndex(idx)

	palace.Store(ctx, archon.Memory{Chamber: "consensus", Content: "state root divergence detected at height 40", Importance: 0.9})
	palace.Store(ctx, archon.Memory{Chamber: "market", Content: "listing purchased for fifty CGT", Importance: 0.4})

	if backend.dimension != 64 {
		t.Fatalf("collection dimension = %d, want 64", backend.dimension)
	}
	if len(backend.points) != 2 {
		t.Fatalf("indexed %d points, want 2", len(backend.points))
	}

	got, err := palace.Recall(ctx, "divergence in the state root", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Chamber != "consensus" {
		t.Fatalf("recall = %+v", got)
	}
	if got[0].AccessCount != 1 {
		t.Errorf("access count = %d, want 1", got[0].AccessCount)
	}

	palace.Recall(ctx, "listing", 5)
	if backend.ensureCalls != 1 {
		t.Errorf("collection ensured %d times, want once", backend.ensureCalls)
	}
}

func TestEvictedMemoriesForgotten(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	palace := archon.NewMemoryPalace(1, zap.NewNop())
	palace.SetIndex(NewRecall(backend, embedding.NewHashProvider(16), zap.NewNop()))

	low, _ := palace.Store(ctx, archon.Memory{Chamber: "c", Content: "minor", Importance: 0.1})
	high, evicted := palace.Store(ctx, archon.Memory{Chamber: "c", Content: "major", Importance: 0.9})
	if evicted == nil || evicted.ID != low.ID {
		t.Fatalf("evicted = %+v, want %s", evicted, low.ID)
	}
	if _, ok := backend.points[low.ID]; ok {
		t.Error("evicted memory still indexed")
	}
	if _, ok := backend.points[high.ID]; !ok {
		t.Error("stored memory not indexed")
	}

	// A memory rejected on arrival is never indexed.
	rejected, evicted := palace.Store(ctx, archon.Memory{Chamber: "c", Content: "noise", Importance: 0})
	if evicted == nil || evicted.ID != rejected.ID {
		t.Fatalf("evicted = %+v, want the new memory", evicted)
	}
	if len(backend.points) != 1 {
		t.Errorf("indexed %d points, want 1", len(backend.points))
	}
}

func TestRecallEnsureFailure(t *testing.T) {
	backend := newMemBackend()
	backend.failEnsure = true
	idx := NewRecall(backend, embedding.NewHashProvider(8), zap.NewNop())

	if err := idx.Index(context.Background(), archon.Memory{ID: "m", Content: "x"}); err == nil {
		t.Fatal("expected ensure error")
	}
	if _, err := idx.Search(context.Background(), "x", 3); err == nil {
		t.Fatal("expected ensure error on search")
	}
}

func TestPointID(t *testing.T) {
	id := uuid.New().String()
	if got := PointID(id); got != id {
		t.Errorf("PointID(%s) = %s", id, got)
	}
	a, b := PointID("directive-7"), PointID("directive-7")
	if a != b {
		t.Errorf("PointID not stable: %s vs %s", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("PointID(directive-7) = %q is not a UUID", a)
	}
	if a == PointID("directive-8") {
		t.Error("distinct memory IDs share a point ID")
	}
}
