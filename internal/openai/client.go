// Package openai talks to the OpenAI-compatible chat-completions API that
// generates review text.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

// Client is a thin wrapper over the chat-completions endpoint. The credential
// is supplied per call because different requests may resolve to different
// payers.
type Client struct {
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client from the OpenAI section of the
// configuration snapshot.
func NewClient(cfg config.OpenAIConfig, logger *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		apiBase: strings.TrimSuffix(cfg.APIBase, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends one prompt and returns the generated review text. Failures
// come back as *core.BackendError so callers can distinguish the retryable
// subset (5xx, transport) from terminal 4xx responses.
func (c *Client) Generate(ctx context.Context, credential core.Secret, model string, temperature float64, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Temperature: temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode backend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential.Value())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Transport-level failure: status 0 marks it retryable.
		return "", &core.BackendError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &core.BackendError{StatusCode: 0, Message: fmt.Sprintf("reading response: %v", err)}
	}

	var parsed chatResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return "", &core.BackendError{StatusCode: 0, Message: fmt.Sprintf("malformed response: %v", jsonErr)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		c.logger.Warn("backend call failed", "model", model, "status", resp.StatusCode)
		return "", &core.BackendError{StatusCode: resp.StatusCode, Message: msg}
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &core.BackendError{StatusCode: resp.StatusCode, Message: "response contained no review text"}
	}
	return parsed.Choices[0].Message.Content, nil
}
