package openai

import (
	"context"
	"errors"
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
)

func newTestClient(serverURL string) *Client {
	return NewClient(config.OpenAIConfig{
		APIBase:        serverURL,
		RequestTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerate_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"looks good"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Generate(context.Background(), core.Secret("sk-test"), "gpt-4o-mini", 0.7, "review this")
	require.NoError(t, err)
	assert.Equal(t, "looks good", got)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestGenerate_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "sk", "m", 0, "p")
	var backendErr *core.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusBadGateway, backendErr.StatusCode)
	assert.True(t, backendErr.Retryable())
}

func TestGenerate_QuotaErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "sk", "m", 0, "p")
	var backendErr *core.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.False(t, backendErr.Retryable(), "4xx must not be retried")
	assert.Contains(t, backendErr.Message, "insufficient quota")
}

func TestGenerate_EmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "sk", "m", 0, "p")
	var backendErr *core.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.False(t, backendErr.Retryable())
}

func TestGenerate_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Generate(ctx, "sk", "m", 0, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
