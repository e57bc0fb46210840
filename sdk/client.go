// Package sdk is a Go client for the Demiurge node's JSON-RPC API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	DefaultTimeout    = 30 * time.Second
)

// RequiredMethods are the node methods this package calls.
var RequiredMethods = []string{
	"cgt_getChainInfo",
	"cgt_getBalance",
	"cgt_getNonce",
	"cgt_getMetadata",
	"cgt_getTotalSupply",
	"cgt_isArchon",
	"cgt_getNftsByOwner",
	"cgt_sendRawTransaction",
	"cgt_getTransaction",
	"cgt_getTransactionHistory",
	"urgeid_get",
	"urgeid_getByHandle",
	"urgeid_getProgress",
	"abyss_getAllListings",
	"abyss_getListing",
	"archon_getState",
	"archon_getDirectives",
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithRetries(n int) Option              { return func(c *Client) { c.retries = max(n, 0) } }
func WithRetryDelay(d time.Duration) Option { return func(c *Client) { c.delay = d } }
func WithTimeout(d time.Duration) Option    { return func(c *Client) { c.timeout = d } }
func WithLogger(l *zap.Logger) Option       { return func(c *Client) { c.logger = l } }

// WithBearerToken sends an Authorization header on every call.
func WithBearerToken(tok string) Option { return func(c *Client) { c.token = tok } }

// Client calls one node.
type Client struct {
	url     string
	http    *http.Client
	retries int
	delay   time.Duration
	timeout time.Duration
	token   string
	nextID  atomic.Uint64
	logger  *zap.Logger
}

// NewClient creates a client for the node at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		retries: DefaultRetries,
		delay:   DefaultRetryDelay,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return c
}

// URL is the node endpoint.
func (c *Client) URL() string { return c.url }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint64 `json:"id"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call invokes method and decodes its result into out, which may be nil.
// Transport failures and most RPC errors are retried; invalid params and
// internal errors are not.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	var last error
	for attempt := 0; attempt <= c.retries; attempt++ {
		resp, err := c.do(ctx, method, params)
		if err != nil {
			if ctx.Err() != nil {
				return &Error{Kind: KindHTTP, Message: "call " + method, Err: ctx.Err()}
			}
			if errors.Is(err, ErrSerialization) {
				return err
			}
			last = err
			if attempt < c.retries {
				if err := c.sleep(ctx, attempt); err != nil {
					return err
				}
			}
			continue
		}
		if resp.Error != nil {
			e := &Error{Kind: KindRPC, Code: resp.Error.Code, Message: resp.Error.Message}
			if resp.Error.Code == -32602 || resp.Error.Code == -32603 || resp.Error.Code == -32000 {
				return e
			}
			last = e
			if attempt < c.retries {
				if err := c.sleep(ctx, attempt); err != nil {
					return err
				}
			}
			continue
		}
		if resp.Result == nil {
			last = &Error{Kind: KindRPC, Message: "RPC response missing result"}
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return &Error{Kind: KindSerialization, Message: "decode " + method + " result", Err: err}
		}
		return nil
	}
	if last == nil {
		last = &Error{Kind: KindOther, Message: "RPC call failed after retries"}
	}
	c.logger.Debug("rpc call failed", zap.String("method", method), zap.Int("retries", c.retries), zap.Error(last))
	return last
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(c.delay * time.Duration(attempt+1))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return &Error{Kind: KindOther, Message: "retry interrupted", Err: ctx.Err()}
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method string, params any) (*response, error) {
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)})
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Message: "encode " + method + " request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindHTTP, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindHTTP, Message: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{Kind: KindHTTP, Status: resp.StatusCode, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(b))}
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindSerialization, Message: "decode response", Err: err}
	}
	return &out, nil
}

// CGT returns the token API.
func (c *Client) CGT() *CGTAPI { return &CGTAPI{c: c} }

// UrgeID returns the identity API.
func (c *Client) UrgeID() *UrgeIDAPI { return &UrgeIDAPI{c: c} }

// Abyss returns the marketplace API.
func (c *Client) Abyss() *AbyssAPI { return &AbyssAPI{c: c} }

// Archon returns the archon API.
func (c *Client) Archon() *ArchonAPI { return &ArchonAPI{c: c} }
