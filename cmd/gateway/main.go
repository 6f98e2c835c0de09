package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"zimflow/internal/app"
	"zimflow/internal/httputil"
)

// bufferedTimeout bounds requests that return a single JSON answer. Model
// downloads can take longer; clients poll /api/status and retry.
const bufferedTimeout = 5 * time.Minute

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		deps.Log.Info("gateway shutting down")
		deps.Orchestrator.Cleanup()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if cerr := deps.Handoff.Close(); cerr != nil {
			deps.Log.Warn("failed to close hand-off channel", "err", cerr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	r.Route("/api", func(r chi.Router) {
		// streaming endpoints
		r.Post("/summarize/stream", summarizeStreamHandler(deps))
		r.Post("/chat", chatHandler(deps))
		r.Post("/vision/{conversation}", visionChatHandler(deps))
		r.Get("/handoff/{surface}/events", handoffEventsHandler(deps))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(bufferedTimeout))

			r.Get("/status", statusHandler(deps))
			r.Get("/languages", languagesHandler(deps))
			r.Post("/summarize", summarizeHandler(deps))
			r.Post("/quiz", quizHandler(deps))
			r.Delete("/chat", resetChatHandler(deps))
			r.Get("/vision", listVisionChatsHandler(deps))
			r.Delete("/vision/{conversation}", endVisionChatHandler(deps))
			r.Post("/translate", translateHandler(deps))
			r.Post("/cleanup", cleanupHandler(deps))
			r.Post("/extract", extractHandler(deps))
			r.Post("/handoff/{surface}", putHandoffHandler(deps))
			r.Get("/handoff/{surface}", takeHandoffHandler(deps))

			if deps.Store != nil && deps.Queue != nil {
				r.Post("/studies", createStudyHandler(deps))
				r.Get("/studies", listStudiesHandler(deps))
				r.Get("/studies/{id}", getStudyHandler(deps))
			}
		})
	})
	return r
}
