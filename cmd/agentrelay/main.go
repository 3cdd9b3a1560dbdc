// Command agentrelay serves interactive agent sessions over WebSocket with a
// small REST control surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/haldis/agentrelay/internal/adapter/http"
	"github.com/haldis/agentrelay/internal/adapter/mcptools"
	"github.com/haldis/agentrelay/internal/adapter/memory"
	"github.com/haldis/agentrelay/internal/adapter/nats"
	"github.com/haldis/agentrelay/internal/adapter/openai"
	"github.com/haldis/agentrelay/internal/adapter/otel"
	"github.com/haldis/agentrelay/internal/adapter/ristretto"
	"github.com/haldis/agentrelay/internal/adapter/tools"
	"github.com/haldis/agentrelay/internal/adapter/ws"
	"github.com/haldis/agentrelay/internal/config"
	"github.com/haldis/agentrelay/internal/logger"
	"github.com/haldis/agentrelay/internal/port/memstore"
	toolsport "github.com/haldis/agentrelay/internal/port/tools"
	"github.com/haldis/agentrelay/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("agentrelay exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := service.NewRegistry(cfg.Agent.OutputDir, cfg.Agent.Version)

	// Tool wiring: either the built-in file tools rooted per session, or a
	// shared MCP executor discovered from the configured server.
	var newTools func(outputDir string) toolsport.Executor
	var defs []toolsport.Definition
	if cfg.MCP.Enabled {
		mcpExec, err := mcptools.Connect(ctx, cfg.MCP, cfg.Agent.Version)
		if err != nil {
			return err
		}
		defer func() { _ = mcpExec.Close() }()
		defs = mcpExec.Definitions()
		newTools = func(string) toolsport.Executor { return mcpExec }
		slog.Info("mcp tools connected", "transport", cfg.MCP.Transport, "tools", len(defs))
	} else {
		defs = tools.BuiltinDefinitions()
		newTools = func(outputDir string) toolsport.Executor { return tools.NewExecutor(outputDir) }
	}

	oracleClient := openai.NewClient(cfg.Oracle, defs)

	var mirror *nats.Mirror
	if cfg.NATS.Enabled {
		mirror, err = nats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer func() { _ = mirror.Close() }()
	}

	metrics, err := otel.NewMetrics()
	if err != nil {
		return err
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return err
	}
	defer cache.Close()

	wsHandler := &ws.Handler{
		Registry:        registry,
		Oracle:          oracleClient,
		NewTools:        newTools,
		Summarizer:      tools.NewSummarizer(),
		NewMemory:       func(sessionID string) memstore.Store { return memory.NewStore(cfg.Agent.MemoryDir, sessionID) },
		Mirror:          mirror,
		Metrics:         metrics,
		Version:         cfg.Agent.Version,
		Provider:        cfg.Oracle.Provider,
		InputTimeout:    cfg.Agent.InputTimeout,
		DefaultMaxSteps: cfg.Agent.DefaultMaxSteps,
	}

	restHandlers := &httpadapter.Handlers{
		Registry: registry,
		Cache:    cache,
		CacheTTL: cfg.Cache.TTL,
		Version:  cfg.Agent.Version,
		Provider: cfg.Oracle.Provider,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(httpadapter.CORS(cfg.Server.CORSOrigin))
	r.Use(httpadapter.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))

	// The websocket endpoint is long-lived; only the REST surface gets a
	// request timeout.
	r.Get("/ws", wsHandler.HandleWS)
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		restHandlers.MountRoutes(r)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("agentrelay listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
