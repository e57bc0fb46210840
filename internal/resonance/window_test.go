package resonance

import (
	"math"
	"sync"
	"testing"
)

func TestWindowDropOldest(t *testing.T) {
	w := NewWindow(3, DropOldest)
	for _, id := range []string{"a", "b", "c"} {
		if ev := w.Add(Record{ID: id, Score: 0.5}); ev != nil {
			t.Fatalf("unexpected eviction of %s", ev.ID)
		}
	}
	ev := w.Add(Record{ID: "d", Score: 0.1})
	if ev == nil || ev.ID != "a" {
		t.Fatalf("evicted %v, want a", ev)
	}
	recs := w.Records()
	if len(recs) != 3 || recs[0].ID != "b" || recs[2].ID != "d" {
		t.Errorf("unexpected order %+v", recs)
	}
}

func TestWindowDropLowest(t *testing.T) {
	w := NewWindow(3, DropLowest)
	w.Add(Record{ID: "a", Score: 0.4})
	w.Add(Record{ID: "b", Score: 0.2})
	w.Add(Record{ID: "c", Score: 0.2})

	ev := w.Add(Record{ID: "d", Score: 0.9})
	if ev == nil || ev.ID != "b" {
		t.Fatalf("evicted %v, want b (oldest of the lowest)", ev)
	}

	// A newcomer lower than everything is rejected instead.
	ev = w.Add(Record{ID: "e", Score: 0.01})
	if ev == nil || ev.ID != "e" {
		t.Fatalf("evicted %v, want e", ev)
	}
	if _, ok := w.Get("e"); ok {
		t.Error("rejected record should not be stored")
	}
	if w.Len() != 3 {
		t.Errorf("len: got %d, want 3", w.Len())
	}
}

func TestWindowClampsAndDefaults(t *testing.T) {
	w := NewWindow(0, DropOldest)
	if w.Max() != DefaultMax {
		t.Errorf("max: got %d, want %d", w.Max(), DefaultMax)
	}
	w.Add(Record{Score: 3})
	w.Add(Record{Score: -1})
	w.Add(Record{Score: math.NaN()})
	for _, r := range w.Records() {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v out of range", r.Score)
		}
		if r.ID == "" || r.Timestamp.IsZero() {
			t.Errorf("record missing id or timestamp: %+v", r)
		}
	}
	if got := w.Mean(); math.Abs(got-1.0/3) > 1e-9 {
		t.Errorf("mean: got %v, want 1/3", got)
	}
}

func TestWindowUpdateRemoveLast(t *testing.T) {
	w := NewWindow(10, DropOldest)
	for i, id := range []string{"a", "b", "c", "d"} {
		w.Add(Record{ID: id, Score: float64(i) / 10})
	}
	if !w.Update("b", func(r *Record) { r.Score = 7; r.ID = "hijack" }) {
		t.Fatal("update b failed")
	}
	r, ok := w.Get("b")
	if !ok || r.Score != 1 {
		t.Errorf("after update: %+v, ok=%v", r, ok)
	}
	if !w.Remove("a") || w.Remove("a") {
		t.Error("remove should succeed exactly once")
	}
	last := w.Last(2)
	if len(last) != 2 || last[0].ID != "c" || last[1].ID != "d" {
		t.Errorf("last(2) = %+v", last)
	}
	if len(w.Last(0)) != 3 {
		t.Errorf("last(0) should return all records")
	}
	w.Reset()
	if w.Len() != 0 || w.Mean() != 0 {
		t.Error("reset did not empty the window")
	}
}

func TestWindowConcurrentAdd(t *testing.T) {
	w := NewWindow(50, DropLowest)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w.Add(Record{Score: float64((g*100+i)%97) / 97})
			}
		}(g)
	}
	wg.Wait()
	if w.Len() != 50 {
		t.Errorf("len: got %d, want 50", w.Len())
	}
}

func TestThresholdAndClassify(t *testing.T) {
	if v := Threshold(0.7, 0.7); !v.Crossed {
		t.Error("score equal to threshold should cross")
	}
	if v := Threshold(0.69, 0.7); v.Crossed {
		t.Error("score below threshold should not cross")
	}

	bands := []Band{{0.9, "high"}, {0.5, "mid"}, {0, "low"}}
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, "high"},
		{0.9, "high"},
		{0.6, "mid"},
		{0.1, "low"},
		{-4, "low"},
	}
	for _, tt := range tests {
		if got := Classify(tt.score, bands).Level; got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(5, 0, 10); got != 0.5 {
		t.Errorf("got %v, want 0.5", got)
	}
	if got := Normalize(5, 10, 10); got != 0 {
		t.Errorf("degenerate range: got %v, want 0", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("mean of nil: got %v", got)
	}
}
