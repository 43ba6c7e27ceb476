// Package handler provides HTTP handlers for the review service.
package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
)

const maxPayloadBytes = 10 << 20

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	cfg        *config.Config
	guard      *guard.Guard
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(cfg *config.Config, g *guard.Guard, dispatcher core.JobDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:        cfg,
		guard:      g,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle processes GitHub webhook requests. The guard runs before any payload
// interpretation: an unauthorized caller learns nothing about what the body
// would have meant.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "Could not read request body", http.StatusBadRequest)
		return
	}

	remoteIP := clientIP(r)
	authzReq := guard.Request{
		Source:    core.SourceWebhook,
		Identity:  remoteIP,
		RemoteIP:  remoteIP,
		Signature: r.Header.Get(github.SHA256SignatureHeader),
		Body:      body,
	}
	if err := h.guard.Authorize(authzReq); err != nil {
		writeAuthzError(w, h.logger, err)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), body)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	switch e := event.(type) {
	case *github.PullRequestEvent:
		h.handlePullRequest(w, r, e)
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
	}
}

// handlePullRequest converts and enqueues a pull request event.
func (h *WebhookHandler) handlePullRequest(w http.ResponseWriter, r *http.Request, event *github.PullRequestEvent) {
	reviewEvent, err := core.EventFromPullRequest(event)
	if err != nil {
		h.logger.Debug("ignoring pull request event", "reason", err.Error(), "repo", event.GetRepo().GetFullName())
		_, _ = fmt.Fprint(w, "Event ignored")
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), reviewEvent); err != nil {
		h.logger.Error("failed to dispatch review job", "error", err, "repo", reviewEvent.RepoFullName())
		http.Error(w, "Failed to start review job", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("review job dispatched successfully", "repo", reviewEvent.RepoFullName(), "pr", reviewEvent.PRNumber)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Review job accepted")
}

// writeAuthzError maps guard rejections onto HTTP status codes. Rate-limited
// responses carry a Retry-After header rounded up to whole seconds.
func writeAuthzError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var authzErr *core.AuthzError
	if !errors.As(err, &authzErr) {
		logger.Error("authorization failed", "error", err)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	switch authzErr.Reason {
	case core.ReasonFeatureDisabled:
		http.Error(w, authzErr.Detail, http.StatusForbidden)
	case core.ReasonRateLimited:
		seconds := int(math.Ceil(authzErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		http.Error(w, authzErr.Detail, http.StatusTooManyRequests)
	default:
		http.Error(w, authzErr.Detail, http.StatusUnauthorized)
	}
}

// clientIP extracts the caller's address. The RealIP middleware has already
// folded proxy headers into RemoteAddr, which may or may not carry a port.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
