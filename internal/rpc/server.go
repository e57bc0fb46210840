// Package rpc serves the node's JSON-RPC 2.0 API over HTTP.
package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/demiurge/internal/archon"
	"github.com/nidhogg/demiurge/internal/chain"
	"github.com/nidhogg/demiurge/internal/fabric"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler serves one method.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

type method struct {
	fn  Handler
	dev bool
}

// Server dispatches JSON-RPC calls against the node.
type Server struct {
	node    *chain.Node
	daemon  *archon.Daemon
	mesh    *fabric.Mesh
	watcher *archon.AnomalyWatcher
	auth    *Auth
	methods map[string]method
	aliases map[string]string
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewServer registers every method. daemon and mesh may be nil.
func NewServer(node *chain.Node, daemon *archon.Daemon, mesh *fabric.Mesh, auth *Auth, logger *zap.Logger) *Server {
	s := &Server{
		node:    node,
		daemon:  daemon,
		mesh:    mesh,
		auth:    auth,
		methods: make(map[string]method),
		aliases: make(map[string]string),
		tracer:  otel.Tracer("github.com/nidhogg/demiurge/internal/rpc"),
		logger:  logger,
	}
	s.registerCGT()
	s.registerUrgeID()
	s.registerAbyss()
	s.registerWork()
	s.registerArchon()
	s.registerOversight()
	s.register("rpc_methods", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"methods": s.Methods()}, nil
	})
	return s
}

// SetWatcher exposes the anomaly log.
func (s *Server) SetWatcher(w *archon.AnomalyWatcher) { s.watcher = w }

func (s *Server) register(name string, fn Handler, aliases ...string) {
	s.methods[name] = method{fn: fn}
	for _, a := range aliases {
		s.aliases[a] = name
	}
}

func (s *Server) registerDev(name string, fn Handler) {
	s.methods[name] = method{fn: fn, dev: true}
}

// Methods lists every served method name and alias, sorted.
func (s *Server) Methods() []string {
	out := make([]string, 0, len(s.methods)+len(s.aliases))
	for name := range s.methods {
		out = append(out, name)
	}
	for a := range s.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Post("/", s.handleRPC)
	r.Post("/rpc", s.handleRPC)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.healthCheck)
		r.Get("/status", s.status)
	})
	return r
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "chain": "demiurge"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	info := s.node.ChainInfo()
	body := map[string]any{
		"node_id":         s.node.Config().NodeID,
		"runtime_version": s.node.Config().RuntimeVersion,
		"dev_mode":        s.node.Config().DevMode,
		"height":          info.Height,
		"block_hash":      info.BlockHash,
		"pending":         s.node.PendingCount(),
		"total_supply":    s.node.TotalSupply().String(),
	}
	if s.daemon != nil {
		diag := s.daemon.Diagnostics()
		body["archon_health"] = diag.Health()
		body["archon_health_score"] = diag.HealthScore()
		body["peers"] = s.daemon.PeerCount()
	}
	if s.mesh != nil {
		body["mesh_stability"] = s.mesh.Stability()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, Response{JSONRPC: Version, Error: &Error{Code: CodeParseError, Message: "read body: " + err.Error()}, ID: nullID})
		return
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, Response{JSONRPC: Version, Error: &Error{Code: CodeParseError, Message: "parse error: " + err.Error()}, ID: nullID})
		return
	}
	writeJSON(w, http.StatusOK, s.Dispatch(r.Context(), &req, r.Header.Get("Authorization")))
}

var nullID = json.RawMessage("null")

// Dispatch runs one request. authorization is the caller's Authorization
// header, checked for dev methods.
func (s *Server) Dispatch(ctx context.Context, req *Request, authorization string) Response {
	resp := Response{JSONRPC: Version, ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = nullID
	}
	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request: jsonrpc must be \"2.0\" and method set"}
		return resp
	}

	name := req.Method
	if canonical, ok := s.aliases[name]; ok {
		name = canonical
	}
	m, ok := s.methods[name]
	if !ok {
		resp.Error = &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	ctx, span := s.tracer.Start(ctx, "rpc."+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", name),
		))
	defer span.End()

	if m.dev && !s.node.Config().DevMode {
		resp.Error = toError(chain.ErrDevModeDisabled)
		span.SetStatus(codes.Error, "dev mode disabled")
		return resp
	}
	if m.dev && s.auth != nil {
		subject, err := s.auth.Check(authorization)
		if err != nil {
			resp.Error = &Error{Code: CodeUnauthorized, Message: err.Error()}
			span.SetStatus(codes.Error, "unauthorized")
			return resp
		}
		span.SetAttributes(attribute.String("rpc.subject", subject))
	}

	result, err := m.fn(ctx, req.Params)
	if err != nil {
		resp.Error = toError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Error.Message)
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", resp.Error.Code))
		if resp.Error.Code == CodeInternal {
			s.logger.Warn("rpc call failed", zap.String("method", req.Method), zap.Error(err))
		} else {
			s.logger.Debug("rpc call rejected", zap.String("method", req.Method), zap.Int("code", resp.Error.Code), zap.Error(err))
		}
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &Error{Code: CodeInternal, Message: "encode result: " + err.Error()}
		span.SetStatus(codes.Error, "encode result")
		return resp
	}
	resp.Result = raw
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
