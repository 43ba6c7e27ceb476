package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
	"github.com/rjtruitt/CodeReviewBot/internal/language"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/internal/storage"
)

// ReviewsHandler serves the review-history lookups, the bulk re-review
// trigger for all configured repositories, and the PR summary endpoint.
type ReviewsHandler struct {
	cfg        *config.Config
	guard      *guard.Guard
	dispatcher core.JobDispatcher
	store      storage.Store
	clients    github.ClientFactory
	resolver   *resolver.Resolver
	summarizer *review.Summarizer
	logger     *slog.Logger
}

// NewReviewsHandler creates a ReviewsHandler.
func NewReviewsHandler(
	cfg *config.Config,
	g *guard.Guard,
	dispatcher core.JobDispatcher,
	store storage.Store,
	clients github.ClientFactory,
	res *resolver.Resolver,
	summarizer *review.Summarizer,
	logger *slog.Logger,
) *ReviewsHandler {
	return &ReviewsHandler{
		cfg:        cfg,
		guard:      g,
		dispatcher: dispatcher,
		store:      store,
		clients:    clients,
		resolver:   res,
		summarizer: summarizer,
		logger:     logger,
	}
}

// authorize runs the guard for the operator endpoints: a bearer token is
// required and the caller's address is the rate-limit identity. Unlike the
// webhook path there is no signed payload, so authenticity follows the
// trusted-token rules.
func (h *ReviewsHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	remoteIP := clientIP(r)
	err := h.guard.Authorize(guard.Request{
		Source:   core.SourceAction,
		Identity: remoteIP,
		RemoteIP: remoteIP,
		Token:    bearerToken(r),
	})
	if err != nil {
		writeAuthzError(w, h.logger, err)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// ReviewAllOpen enqueues a review for every open pull request of every
// configured repository. Listing failures for one repository do not stop the
// sweep over the others.
func (h *ReviewsHandler) ReviewAllOpen(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	type sweepResult struct {
		Queued int      `json:"queued"`
		Errors []string `json:"errors,omitempty"`
	}
	var result sweepResult

	for fullName := range h.cfg.Repositories {
		owner, repo, err := core.ParseRepoFullName(fullName)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		event := &core.ReviewEvent{RepoOwner: owner, RepoName: repo, Source: core.SourceWebhook}
		client, err := h.clients.ClientFor(r.Context(), event)
		if err != nil {
			h.logger.Error("no client for repository sweep", "repo", fullName, "error", err)
			result.Errors = append(result.Errors, fullName+": "+err.Error())
			continue
		}

		prs, err := client.ListOpenPullRequests(r.Context(), owner, repo)
		if err != nil {
			h.logger.Error("failed to list open pull requests", "repo", fullName, "error", err)
			result.Errors = append(result.Errors, fullName+": "+err.Error())
			continue
		}

		for _, pr := range prs {
			ev := &core.ReviewEvent{
				RepoOwner: owner,
				RepoName:  repo,
				PRNumber:  pr.Number,
				Author:    pr.Author,
				HeadSHA:   pr.HeadSHA,
				Source:    core.SourceWebhook,
			}
			if err := h.dispatcher.Dispatch(r.Context(), ev); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Queued++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(result)
}

// SummarizePR condenses one pull request's diffs into a single overview
// comment and returns the summary text. Runs synchronously: summaries are a
// single backend round per file and an operator is waiting for the answer.
func (h *ReviewsHandler) SummarizePR(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		http.Error(w, "Invalid pull request number", http.StatusBadRequest)
		return
	}

	event := &core.ReviewEvent{RepoOwner: owner, RepoName: repo, PRNumber: number, Source: core.SourceWebhook}
	client, err := h.clients.ClientFor(r.Context(), event)
	if err != nil {
		h.logger.Error("no client for summary", "repo", event.RepoFullName(), "error", err)
		http.Error(w, "No hosting credentials available", http.StatusBadGateway)
		return
	}

	if err := h.hydrate(r, client, event); err != nil {
		h.logger.Error("failed to load pull request for summary", "repo", event.RepoFullName(), "pr", number, "error", err)
		http.Error(w, "Could not load pull request", http.StatusBadGateway)
		return
	}
	if len(event.Files) == 0 {
		http.Error(w, "Pull request has no summarizable files", http.StatusUnprocessableEntity)
		return
	}

	configFor := func(f core.ChangedFile) (core.EffectiveConfig, error) {
		return h.resolver.Resolve(event.RepoOwner, event.RepoName, event.Author, f.Language)
	}
	summary, err := h.summarizer.Summarize(r.Context(), event, configFor)
	if err != nil {
		h.logger.Error("summary generation failed", "repo", event.RepoFullName(), "pr", number, "error", err)
		http.Error(w, "Summary generation failed", http.StatusBadGateway)
		return
	}

	if err := client.CreateComment(r.Context(), owner, repo, number, review.FormatSummaryComment(event, summary)); err != nil {
		h.logger.Error("failed to post summary comment", "repo", event.RepoFullName(), "pr", number, "error", err)
		http.Error(w, "Could not post summary comment", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"summary": summary})
}

// hydrate fills author and changed files from the hosting API. Files without
// a patch are skipped.
func (h *ReviewsHandler) hydrate(r *http.Request, client github.Client, event *core.ReviewEvent) error {
	pr, err := client.GetPullRequest(r.Context(), event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return err
	}
	event.Author = pr.Author
	event.HeadSHA = pr.HeadSHA

	files, err := client.GetChangedFiles(r.Context(), event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		event.Files = append(event.Files, core.ChangedFile{
			Path:     f.Filename,
			Language: language.Detect(f.Filename),
			Diff:     f.Patch,
		})
	}
	return nil
}

// GetLatest returns the most recent persisted outcome for one pull request.
func (h *ReviewsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		http.Error(w, "Invalid pull request number", http.StatusBadRequest)
		return
	}

	rec, err := h.store.GetLatestReviewForPR(r.Context(), owner+"/"+repo, number)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "No review found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load review", "repo", owner+"/"+repo, "pr", number, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

// StatusHandler reports process liveness details.
type StatusHandler struct {
	started time.Time
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler anchored at the current time.
func NewStatusHandler(logger *slog.Logger) *StatusHandler {
	return &StatusHandler{started: time.Now(), logger: logger}
}

// Handle returns the service status as JSON.
func (h *StatusHandler) Handle(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
