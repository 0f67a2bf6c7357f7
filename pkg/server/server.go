// Package server implements the HTTP/SSE surface (SPEC_FULL.md §6): the
// chat endpoint and the observability endpoints, wiring together config,
// auth, the tool registry, the LLM provider registry, the context
// assembler, the quota gate, the orchestrator, the event emitter, and the
// persistence writer.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/convoyhq/orchestrator/pkg/assembler"
	"github.com/convoyhq/orchestrator/pkg/auth"
	"github.com/convoyhq/orchestrator/pkg/config"
	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/memory"
	"github.com/convoyhq/orchestrator/pkg/observability"
	"github.com/convoyhq/orchestrator/pkg/quota"
	"github.com/convoyhq/orchestrator/pkg/tools"
)

// TenantLookup resolves a tenant's configuration (quota, model allowlist)
// by tenant id. The tenant CRUD surface producing these records is out of
// this module's scope (spec.md §1); the server only reads through this
// interface.
type TenantLookup interface {
	Lookup(ctx context.Context, tenantID string) (*config.TenantConfig, error)
}

// Deps are the constructed collaborators the server routes need. Building
// them is main's job (cmd/convoyd); Server only wires them to routes.
type Deps struct {
	Config        *config.Config
	DB            *sql.DB
	Verifier      *auth.Verifier
	Models        *llm.Registry
	ToolRegistry  *tools.Registry
	Assembler     *assembler.Assembler
	QuotaGate     *quota.Gate
	MemoryClient  *memory.Client
	Tenants       TenantLookup
	Logger        *slog.Logger
	MetricsReg    *prometheus.Registry
}

// Server holds the assembled chi router and its dependencies.
type Server struct {
	router *chi.Mux
	deps   Deps
}

// New builds the router: ambient middleware (request id, panic recovery,
// tracing/metrics), CORS, auth, then the chat and observability routes.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(observability.HTTPMiddleware)
	r.Use(corsMiddleware(deps.Config.Server.CORS))

	requireAuth := deps.Config.Server.Auth.IsRequireAuth()
	if deps.Verifier != nil {
		r.Use(auth.Middleware(deps.Verifier, requireAuth))
	}

	r.Post("/v1/chat", s.handleChat)
	if deps.MetricsReg != nil {
		r.Get("/metrics", observability.MetricsHandler(deps.MetricsReg).ServeHTTP)
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// corsMiddleware applies the configured CORS policy, mirroring the
// teacher's transport.corsMiddleware but driven by config instead of
// hardcoded "*" everywhere.
func corsMiddleware(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	origins := []string{"*"}
	methods := "GET, POST, OPTIONS"
	headers := "Content-Type, Authorization"
	if cfg != nil {
		if len(cfg.AllowedOrigins) > 0 {
			origins = cfg.AllowedOrigins
		}
		if len(cfg.AllowedMethods) > 0 {
			methods = joinComma(cfg.AllowedMethods)
		}
		if len(cfg.AllowedHeaders) > 0 {
			headers = joinComma(cfg.AllowedHeaders)
		}
	}
	origin := origins[0]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinComma(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
