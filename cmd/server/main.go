package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkarlsen/sitealarm/broadcast"
	"github.com/mkarlsen/sitealarm/engine"
	"github.com/mkarlsen/sitealarm/historian"
	"github.com/mkarlsen/sitealarm/internal/config"
	"github.com/mkarlsen/sitealarm/internal/logger"
	"github.com/mkarlsen/sitealarm/rules"
	"github.com/mkarlsen/sitealarm/telemetry"
)

// Server wires the alarm engine's stores, scheduler and broadcast hub
// behind the HTTP API.
type Server struct {
	db        *sql.DB
	rules     rules.Store
	telemetry telemetry.Store
	historian historian.Store
	hub       *broadcast.Hub
	scheduler *engine.Scheduler
	upgrader  websocket.Upgrader
	wsTimeout time.Duration
	router    *chi.Mux
}

// NewServer connects to the database and assembles the engine.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ruleStore := rules.NewPostgresStore(db)
	telemetryStore := telemetry.NewPostgresStore(db)
	historianStore := historian.NewPostgresStore(db)
	hub := broadcast.NewHub()
	scheduler := engine.NewScheduler(ruleStore, historianStore, hub, time.Duration(cfg.TickInterval))

	s := &Server{
		db:        db,
		rules:     ruleStore,
		telemetry: telemetryStore,
		historian: historianStore,
		hub:       hub,
		scheduler: scheduler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		wsTimeout: time.Duration(cfg.WSWriteTimeout),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Post("/validate", s.handleValidateRule)

		r.Route("/{ruleID}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
		})
	})

	r.Get("/api/v1/telemetry", s.handleListTelemetry)
	r.Post("/api/v1/telemetry", s.handleUpsertTelemetry)

	r.Get("/api/v1/alarms", s.handleListAlarms)
	r.Get("/api/v1/ws", s.handleSubscribe)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
	flag.Parse()

	loader, err := config.NewLoader(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	cfg := loader.Config()

	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal("database URL is required (config database_url or DATABASE_URL environment variable)")
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to initialize server", "error", err)
	}

	// Hot-apply log level and tick cadence on config file changes.
	loader.OnChange(func(c *config.Config) {
		if level, err := logger.ParseLevel(c.LogLevel); err == nil {
			logger.SetLevel(level)
		}
		server.scheduler.SetInterval(time.Duration(c.TickInterval))
		logger.Info("configuration reloaded", "tick_interval", time.Duration(c.TickInterval).String())
	})
	if configPath != "" {
		stopWatch, err := loader.Watch()
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.scheduler.Start(ctx)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	server.scheduler.Stop()
	if err := server.db.Close(); err != nil {
		logger.Error("database close failed", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("logger shutdown failed", "error", err)
	}
}
