package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(apiResponse{
			Data: []apiEmbeddingData{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model", APIKey: "k", Dimension: 8})
	if p.Dimension() != 8 {
		t.Fatalf("got dimension %d before first call, want configured 8", p.Dimension())
	}
	vectors, err := p.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 3 {
		t.Fatalf("got %v", vectors)
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}

	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestOllamaProviderEmbed(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		calls++
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{1, 0}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{Endpoint: srv.URL, Model: "m"})
	vectors, err := p.Embed(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2 || calls != 2 {
		t.Fatalf("vectors=%d calls=%d", len(vectors), calls)
	}
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(0)
	if p.Dimension() != DefaultHashDimension {
		t.Fatalf("dimension = %d", p.Dimension())
	}
	vecs, err := p.Embed(context.Background(), []string{
		"state root divergence at height 9",
		"State root divergence, height 12",
		"listing purchased in the abyss",
	})
	if err != nil {
		t.Fatal(err)
	}
	again, _ := p.Embed(context.Background(), []string{"state root divergence at height 9"})
	if cosine(vecs[0], again[0]) < 0.999 {
		t.Fatal("hash embedding is not deterministic")
	}
	near, far := cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2])
	if near <= far {
		t.Fatalf("related texts scored %.3f, unrelated %.3f", near, far)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	if _, ok := mustNew(t, Config{}).(*HashProvider); !ok {
		t.Fatal("empty config should select the hash provider")
	}
	if _, ok := mustNew(t, Config{Provider: "ollama", Endpoint: "http://x"}).(*OllamaProvider); !ok {
		t.Fatal("ollama not selected")
	}
	if _, err := New(Config{Provider: "api"}); err == nil {
		t.Fatal("api provider without endpoint accepted")
	}
	if _, err := New(Config{Provider: "nope"}); err == nil {
		t.Fatal("unknown provider accepted")
	}
}

func mustNew(t *testing.T, cfg Config) Provider {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
