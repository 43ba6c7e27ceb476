package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
	"github.com/rjtruitt/CodeReviewBot/internal/ratelimit"
)

const testSecret = "hook-secret"

type fakeDispatcher struct {
	events []*core.ReviewEvent
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, event *core.ReviewEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeDispatcher) Stop() {}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func prOpenedPayload() []byte {
	return []byte(`{
		"action": "opened",
		"number": 5,
		"pull_request": {
			"number": 5,
			"user": {"login": "alice"},
			"head": {"sha": "abc123"}
		},
		"repository": {
			"name": "api",
			"full_name": "acme/api",
			"owner": {"login": "acme"}
		},
		"installation": {"id": 99}
	}`)
}

func webhookConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{WebhookSecret: testSecret},
		GitHub: config.GitHubConfig{DefaultAPIKey: "key"},
		Features: config.FeatureConfig{
			EnableWebhooks: true,
		},
		RateLimit: config.RateLimitConfig{MaxRequests: 100, Window: time.Minute, IdleTTL: time.Minute},
	}
}

func newTestHandler(cfg *config.Config, dispatcher core.JobDispatcher) *WebhookHandler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.IdleTTL, time.Now)
	return NewWebhookHandler(cfg, guard.New(cfg, limiter, log), dispatcher, log)
}

func postWebhook(h *WebhookHandler, eventType string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	req.RemoteAddr = "192.0.2.10:54321"

	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhook_AcceptsSignedPullRequest(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := newTestHandler(webhookConfig(), dispatcher)

	body := prOpenedPayload()
	rec := postWebhook(h, "pull_request", body, sign(testSecret, body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, dispatcher.events, 1)
	ev := dispatcher.events[0]
	assert.Equal(t, "acme", ev.RepoOwner)
	assert.Equal(t, "api", ev.RepoName)
	assert.Equal(t, 5, ev.PRNumber)
	assert.Equal(t, "alice", ev.Author)
	assert.Equal(t, core.SourceWebhook, ev.Source)
	assert.EqualValues(t, 99, ev.InstallationID)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := newTestHandler(webhookConfig(), dispatcher)

	body := prOpenedPayload()
	rec := postWebhook(h, "pull_request", body, sign("wrong-secret", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, dispatcher.events)
}

func TestWebhook_FeatureDisabled(t *testing.T) {
	cfg := webhookConfig()
	cfg.Features.EnableWebhooks = false
	h := newTestHandler(cfg, &fakeDispatcher{})

	body := prOpenedPayload()
	rec := postWebhook(h, "pull_request", body, sign(testSecret, body))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhook_RateLimitSetsRetryAfter(t *testing.T) {
	cfg := webhookConfig()
	cfg.RateLimit.MaxRequests = 1
	dispatcher := &fakeDispatcher{}
	h := newTestHandler(cfg, dispatcher)

	body := prOpenedPayload()
	sig := sign(testSecret, body)

	rec := postWebhook(h, "pull_request", body, sig)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = postWebhook(h, "pull_request", body, sig)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Len(t, dispatcher.events, 1)
}

func TestWebhook_IgnoresUnhandledEventTypes(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := newTestHandler(webhookConfig(), dispatcher)

	body := []byte(`{"ref": "refs/heads/main"}`)
	rec := postWebhook(h, "push", body, sign(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.events)
}

func TestWebhook_IgnoresClosedPullRequests(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := newTestHandler(webhookConfig(), dispatcher)

	body := bytes.Replace(prOpenedPayload(), []byte(`"opened"`), []byte(`"closed"`), 1)
	rec := postWebhook(h, "pull_request", body, sign(testSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.events)
}

func TestWebhook_QueueFullReturnsServiceUnavailable(t *testing.T) {
	dispatcher := &fakeDispatcher{err: context.DeadlineExceeded}
	h := newTestHandler(webhookConfig(), dispatcher)

	body := prOpenedPayload()
	rec := postWebhook(h, "pull_request", body, sign(testSecret, body))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
