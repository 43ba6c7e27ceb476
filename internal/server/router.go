package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/internal/server/handler"
	"github.com/rjtruitt/CodeReviewBot/internal/storage"
)

// NewRouter creates and configures a new HTTP router with middleware and API routes.
func NewRouter(
	cfg *config.Config,
	g *guard.Guard,
	dispatcher core.JobDispatcher,
	store storage.Store,
	clients github.ClientFactory,
	res *resolver.Resolver,
	summarizer *review.Summarizer,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handler.NewStatusHandler(logger).Handle)

		webhookHandler := handler.NewWebhookHandler(cfg, g, dispatcher, logger)
		r.Post("/webhook/github", webhookHandler.Handle)

		reviewsHandler := handler.NewReviewsHandler(cfg, g, dispatcher, store, clients, res, summarizer, logger)
		r.Post("/reviews/all", reviewsHandler.ReviewAllOpen)
		r.Get("/reviews/{owner}/{repo}/{number}", reviewsHandler.GetLatest)
		r.Post("/reviews/{owner}/{repo}/{number}/summary", reviewsHandler.SummarizePR)
	})

	return r
}
