package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoDefaultCredential means the default credential scope is missing from
// the loaded configuration. This is a startup-time invariant violation; once
// validation has passed it is unreachable in steady state.
var ErrNoDefaultCredential = errors.New("no default credential configured")

// ConfigError is fatal and only produced while loading or validating the
// configuration snapshot.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// AuthzReason classifies why AccessGuard rejected a request.
type AuthzReason string

const (
	ReasonFeatureDisabled AuthzReason = "feature_disabled"
	ReasonUnauthorized    AuthzReason = "unauthorized"
	ReasonRateLimited     AuthzReason = "rate_limited"
)

// AuthzError is terminal for the event it rejects. RetryAfter is set only for
// rate-limit rejections.
type AuthzError struct {
	Reason     AuthzReason
	Detail     string
	RetryAfter time.Duration
}

func (e *AuthzError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authorization rejected: %s", e.Reason)
	}
	return fmt.Sprintf("authorization rejected: %s (%s)", e.Reason, e.Detail)
}

// BackendError is a failure from the generative backend for a single file.
// 5xx and transport timeouts are retryable; 4xx (bad request, quota, auth)
// are terminal for that file.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether another attempt could succeed.
func (e *BackendError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 0
}

// PublishError reports exactly which files' reviews were not delivered after
// retries were exhausted. Never a superset or subset of the actual failures.
type PublishError struct {
	FailedFiles []string
	Err         error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed for %d file(s): %v", len(e.FailedFiles), e.FailedFiles)
}

func (e *PublishError) Unwrap() error { return e.Err }
