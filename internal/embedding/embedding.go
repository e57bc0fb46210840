// Package embedding turns memory text into vectors for semantic recall.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider" yaml:"provider"` // "hash", "api" or "ollama"
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Model     string `json:"model" yaml:"model"`
	APIKey    string `json:"api_key" yaml:"api_key"`
	Dimension int    `json:"dimension" yaml:"dimension"`
}

// New builds the configured provider. An empty provider name selects the hash provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHashProvider(cfg.Dimension), nil
	case "api":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: api provider needs an endpoint")
		}
		return NewAPIProvider(cfg), nil
	case "ollama":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: ollama provider needs an endpoint")
		}
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func post(ctx context.Context, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}

// dimension caches the width of the first vector a remote provider returns.
type dimension struct {
	configured int
	seen       atomic.Int64
}

func (d *dimension) observe(vecs [][]float32) {
	if len(vecs) > 0 && len(vecs[0]) > 0 {
		d.seen.CompareAndSwap(0, int64(len(vecs[0])))
	}
}

func (d *dimension) get() int {
	if n := d.seen.Load(); n > 0 {
		return int(n)
	}
	return d.configured
}

// APIProvider calls an OpenAI-compatible /embeddings endpoint.
type APIProvider struct {
	endpoint string
	model    string
	apiKey   string
	dim      dimension
}

func NewAPIProvider(cfg Config) *APIProvider {
	return &APIProvider{endpoint: cfg.Endpoint, model: cfg.Model, apiKey: cfg.APIKey, dim: dimension{configured: cfg.Dimension}}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed embeds every text in one request.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var result apiResponse
	if err := post(ctx, p.endpoint+"/embeddings", p.apiKey, apiRequest{Model: p.model, Input: texts}, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts", len(result.Data), len(texts))
	}
	out := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	p.dim.observe(out)
	return out, nil
}

// Dimension is the observed width, or the configured one before the first call.
func (p *APIProvider) Dimension() int { return p.dim.get() }

// OllamaProvider calls an Ollama /api/embeddings endpoint, one text per request.
type OllamaProvider struct {
	endpoint string
	model    string
	dim      dimension
}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	return &OllamaProvider{endpoint: cfg.Endpoint, model: cfg.Model, dim: dimension{configured: cfg.Dimension}}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var result ollamaResponse
		if err := post(ctx, p.endpoint+"/api/embeddings", "", ollamaRequest{Model: p.model, Prompt: text}, &result); err != nil {
			return nil, err
		}
		out = append(out, result.Embedding)
	}
	p.dim.observe(out)
	return out, nil
}

func (p *OllamaProvider) Dimension() int { return p.dim.get() }
