package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/convoyhq/orchestrator/pkg/assembler"
	"github.com/convoyhq/orchestrator/pkg/auth"
	"github.com/convoyhq/orchestrator/pkg/config"
	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/memory"
	"github.com/convoyhq/orchestrator/pkg/observability"
	"github.com/convoyhq/orchestrator/pkg/persistence"
	"github.com/convoyhq/orchestrator/pkg/quota"
	"github.com/convoyhq/orchestrator/pkg/server"
	"github.com/convoyhq/orchestrator/pkg/tools"
)

// ServeCmd starts the HTTP/SSE server.
type ServeCmd struct {
	Port int `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	logger, err := cfg.Logger.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := persistence.InitSchema(db); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		SamplingRate: cfg.Tracing.SamplingRate,
	}); err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	metricsReg := observability.NewRegistry()
	observability.MustRegisterHTTPMetrics(metricsReg)
	tools.MustRegisterMetrics(metricsReg)

	models, err := llm.NewRegistry(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build LLM registry: %w", err)
	}

	toolRegistry := tools.NewRegistry()
	tools.RegisterDefaultBuiltins(toolRegistry)

	quotaStore, closeQuota, err := buildQuotaStore(cfg.Quota)
	if err != nil {
		return fmt.Errorf("build quota store: %w", err)
	}
	defer closeQuota()
	quotaGate := quota.NewGate(quotaStore)

	// memoryClient and ragRetriever are assigned to the Assembler's
	// interface-typed fields only when non-nil: a nil *memory.Client or
	// *rag.Retriever boxed into an interface is a non-nil interface value,
	// which would defeat the Assembler's `a.Memory == nil` skip check.
	asm := &assembler.Assembler{
		History:   &persistence.HistoryLoader{DB: db},
		Registry:  toolRegistry,
		Catalogue: tools.NewCatalogueLoader(db, toolRegistry, logger),
		Logger:    logger,
	}

	var memoryClient *memory.Client
	if cfg.Memory.BaseURL != "" {
		memoryClient = memory.NewClient(cfg.Memory.BaseURL, logger)
		asm.Memory = memoryClient
	}

	ragRetriever, closeRAG, err := buildRAGRetriever(cfg.RAG)
	if err != nil {
		return fmt.Errorf("build RAG retriever: %w", err)
	}
	if closeRAG != nil {
		defer closeRAG()
	}
	if ragRetriever != nil {
		asm.RAG = ragRetriever
	}

	var verifier *auth.Verifier
	if cfg.Server.Auth != nil && (cfg.Server.Auth.JWKSUrl != "" || cfg.Server.Auth.HMACSecret != "") {
		verifier, err = auth.NewVerifier(ctx, cfg.Server.Auth.JWKSUrl, cfg.Server.Auth.HMACSecret, cfg.Server.Auth.ClaimUserKey)
		if err != nil {
			return fmt.Errorf("build auth verifier: %w", err)
		}
	}

	srv := server.New(server.Deps{
		Config:       cfg,
		DB:           db,
		Verifier:     verifier,
		Models:       models,
		ToolRegistry: toolRegistry,
		Assembler:    asm,
		QuotaGate:    quotaGate,
		MemoryClient: memoryClient,
		Tenants:      &config.StaticTenantLookup{Tenants: cfg.Tenants},
		Logger:       logger,
		MetricsReg:   metricsReg,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	logger.Info("draining connections")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-errCh
}
