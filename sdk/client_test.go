package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type scripted struct {
	calls   atomic.Int32
	respond func(n int32, w http.ResponseWriter, req map[string]any)
}

func (s *scripted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.calls.Add(1)
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.respond(n, w, req)
}

func newScripted(t *testing.T, fn func(n int32, w http.ResponseWriter, req map[string]any)) (*scripted, *Client) {
	t.Helper()
	s := &scripted{respond: fn}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, NewClient(ts.URL, WithRetries(2), WithRetryDelay(time.Millisecond))
}

func reply(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func TestCallRetriesHTTPErrors(t *testing.T) {
	s, c := newScripted(t, func(n int32, w http.ResponseWriter, _ map[string]any) {
		if n < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		reply(w, `{"jsonrpc":"2.0","result":{"height":4,"block_hash":"ab"},"id":1}`)
	})

	info, err := c.CGT().ChainInfo(context.Background())
	if err != nil {
		t.Fatalf("chain info: %v", err)
	}
	if info.Height != 4 {
		t.Fatalf("height = %d", info.Height)
	}
	if got := s.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestCallExhaustsRetries(t *testing.T) {
	s, c := newScripted(t, func(_ int32, w http.ResponseWriter, _ map[string]any) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	err := c.Call(context.Background(), "cgt_getChainInfo", nil, nil)
	if !errors.Is(err, ErrHTTP) {
		t.Fatalf("got %v, want HTTP error", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Status != http.StatusBadGateway {
		t.Fatalf("error = %#v", err)
	}
	if got := s.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want retries+1 = 3", got)
	}
}

func TestCallDoesNotRetryParamErrors(t *testing.T) {
	for _, code := range []int{-32602, -32603, -32000} {
		s, c := newScripted(t, func(_ int32, w http.ResponseWriter, _ map[string]any) {
			b, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "error": map[string]any{"code": code, "message": "nope"}, "id": 1})
			reply(w, string(b))
		})
		err := c.Call(context.Background(), "cgt_getBalance", nil, nil)
		if !errors.Is(err, ErrRPC) || RPCCode(err) != code {
			t.Fatalf("code %d: got %v", code, err)
		}
		if got := s.calls.Load(); got != 1 {
			t.Fatalf("code %d: calls = %d, want 1", code, got)
		}
	}
}

func TestCallRetriesOtherRPCErrors(t *testing.T) {
	s, c := newScripted(t, func(_ int32, w http.ResponseWriter, _ map[string]any) {
		reply(w, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"method not found"},"id":1}`)
	})
	err := c.Call(context.Background(), "cgt_missing", nil, nil)
	if RPCCode(err) != -32601 {
		t.Fatalf("got %v", err)
	}
	if got := s.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestCallMissingResult(t *testing.T) {
	_, c := newScripted(t, func(_ int32, w http.ResponseWriter, _ map[string]any) {
		reply(w, `{"jsonrpc":"2.0","id":1}`)
	})
	err := c.Call(context.Background(), "cgt_getChainInfo", nil, nil)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRPC || e.Message != "RPC response missing result" {
		t.Fatalf("got %v", err)
	}
}

func TestCallDecodeFailureIsSerialization(t *testing.T) {
	s, c := newScripted(t, func(_ int32, w http.ResponseWriter, _ map[string]any) {
		reply(w, `not json`)
	})
	err := c.Call(context.Background(), "cgt_getChainInfo", nil, nil)
	if !errors.Is(err, ErrSerialization) {
		t.Fatalf("got %v, want serialization error", err)
	}
	if got := s.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestCallHonorsContextDuringBackoff(t *testing.T) {
	s := &scripted{respond: func(_ int32, w http.ResponseWriter, _ map[string]any) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}}
	ts := httptest.NewServer(s)
	defer ts.Close()
	c := NewClient(ts.URL, WithRetries(5), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := c.Call(ctx, "cgt_getChainInfo", nil, nil)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("backoff ignored context")
	}
}

func TestRequestIDsIncrease(t *testing.T) {
	var ids []float64
	_, c := newScripted(t, func(_ int32, w http.ResponseWriter, req map[string]any) {
		ids = append(ids, req["id"].(float64))
		if req["jsonrpc"] != "2.0" {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		reply(w, `{"jsonrpc":"2.0","result":null,"id":1}`)
	})
	for i := 0; i < 3; i++ {
		if err := c.Call(context.Background(), "cgt_getTransaction", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if len(ids) != 3 || !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestAddressValidatedBeforeCall(t *testing.T) {
	s, c := newScripted(t, func(_ int32, w http.ResponseWriter, _ map[string]any) {
		reply(w, `{"jsonrpc":"2.0","result":{},"id":1}`)
	})
	if _, err := c.CGT().Balance(context.Background(), "0x1234"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("got %v, want invalid address", err)
	}
	if _, err := c.UrgeID().Profile(context.Background(), "nothex"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("got %v, want invalid address", err)
	}
	if s.calls.Load() != 0 {
		t.Fatal("invalid address reached the node")
	}
}

func TestErrorIs(t *testing.T) {
	err := &Error{Kind: KindSigning, Message: "bad key", Err: errors.New("short")}
	if !errors.Is(err, ErrSigning) || errors.Is(err, ErrRPC) {
		t.Fatalf("kind matching broken for %v", err)
	}
	if err.Error() != "signing error: bad key" {
		t.Fatalf("message = %q", err.Error())
	}
}
