// Entry point for the quizd HTTP service: chi router with the shield
// middleware stack, the solve trigger and observation endpoints, optional
// SQLite event persistence, and an optional MCP stdio transport.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/quizd/app"
	"github.com/hazyhaar/quizd/config"
	"github.com/hazyhaar/quizd/dbopen"
	"github.com/hazyhaar/quizd/observability"
	"github.com/hazyhaar/quizd/shield"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []app.Option{app.WithLogger(logger)}

	// Optional event persistence.
	if cfg.EventDB != "" {
		db, err := dbopen.Open(cfg.EventDB,
			dbopen.WithMkdirAll(),
			dbopen.WithSchema(observability.EventSchema))
		if err != nil {
			slog.Error("event db", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		events := observability.NewEventLogger(db, 64)
		defer events.Close()
		opts = append(opts, app.WithEvents(events))
	}

	svc := app.New(cfg, opts...)
	defer svc.Close()
	svc.StartSweeper(ctx)

	// Optional MCP stdio transport.
	if os.Getenv("MCP_TRANSPORT") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "quizd",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		tasks := svc.TaskSnapshot()
		fmt.Fprintf(w, statusPage, len(tasks), cfg.Model, int(cfg.ChainTimeout.Seconds()))
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"status":                "ok",
			"model":                 cfg.Model,
			"chain_timeout_seconds": int(cfg.ChainTimeout.Seconds()),
			"has_gateway_token":     cfg.GatewayToken != "",
			"has_credentials":       cfg.StudentEmail != "" && cfg.StudentSecret != "",
		})
	})

	r.Post("/quiz", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email  string `json:"email"`
			Secret string `json:"secret"`
			URL    string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.URL == "" {
			writeError(w, 400, fmt.Errorf("url is required"))
			return
		}
		if err := svc.Authorize(req.Email, req.Secret); err != nil {
			if errors.Is(err, app.ErrUnauthorized) {
				writeError(w, 403, err)
				return
			}
			writeError(w, 500, err)
			return
		}

		taskID := svc.Solve(req.URL)
		writeJSON(w, 200, map[string]any{
			"status":    "accepted",
			"message":   "quiz chain started",
			"task_id":   taskID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"tasks":       svc.TaskSnapshot(),
			"recent_logs": svc.Logs(queryInt(r, "limit", 20)),
		})
	})

	r.Get("/status/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		task, ok := svc.Task(chi.URLParam(r, "taskID"))
		if !ok {
			writeError(w, 404, fmt.Errorf("unknown task"))
			return
		}
		writeJSON(w, 200, task)
	})

	r.Get("/logs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"logs": svc.Logs(queryInt(r, "limit", 100)),
		})
	})

	r.Delete("/logs", func(w http.ResponseWriter, _ *http.Request) {
		svc.ClearLogs()
		writeJSON(w, 200, map[string]string{"status": "cleared"})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

const statusPage = `<!doctype html>
<html><head><title>quizd</title></head>
<body>
<h1>quizd</h1>
<p>Active tasks: %d</p>
<p>Model: %s</p>
<p>Chain timeout: %ds</p>
<p>See <code>/health</code>, <code>/status</code>, <code>/logs</code>.</p>
</body></html>
`

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
