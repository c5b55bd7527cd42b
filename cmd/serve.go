package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/propmap/internal/summary"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the summary and simplified boundaries over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		sink, pool, err := openSink(ctx)
		if err != nil {
			return eris.Wrap(err, "serve: open summary store")
		}
		defer sink.Close() //nolint:errcheck
		if pool != nil {
			defer pool.Close()
		}

		port := resolvePort(servePort, cfg.Server.Port)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(sink, cfg.Server.BoundariesPath, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return startServer(ctx, srv)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value when set.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer runs srv until ctx is cancelled, then shuts it down.
func startServer(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// summaryLoader is the read side of summary.Sink.
type summaryLoader interface {
	Load(ctx context.Context) (summary.Summary, error)
}

func newRouter(src summaryLoader, boundariesPath string, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/summary", func(w http.ResponseWriter, req *http.Request) {
		s, err := src.Load(req.Context())
		if err != nil {
			serverError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	})

	r.Get("/summary/{district}", func(w http.ResponseWriter, req *http.Request) {
		s, err := src.Load(req.Context())
		if err != nil {
			serverError(w, req, err)
			return
		}
		district := strings.ToUpper(strings.TrimSpace(chi.URLParam(req, "district")))
		entry, ok := s[district]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "district not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"district": district, "fields": entry})
	})

	r.Get("/boundaries", func(w http.ResponseWriter, req *http.Request) {
		f, err := os.Open(boundariesPath)
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "boundaries not built"})
			return
		}
		if err != nil {
			serverError(w, req, err)
			return
		}
		defer f.Close() //nolint:errcheck

		info, err := f.Stat()
		if err != nil {
			serverError(w, req, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		http.ServeContent(w, req, info.Name(), info.ModTime(), f)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, req *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", req.URL.Path),
		zap.String("request_id", middleware.GetReqID(req.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
