// Package guard validates inbound review requests before any work is
// dispatched: feature toggles, request authenticity, source address policy,
// and per-identity rate limiting.
package guard

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/google/go-github/v73/github"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/ratelimit"
)

// Request carries everything the guard needs about one inbound request. The
// boundary adapters fill it in; the guard itself never looks at transport
// details beyond this.
type Request struct {
	Source    core.EventSource
	Identity  string // rate-limit key: source IP in daemon mode, repository in Action mode
	RemoteIP  string
	Signature string // X-Hub-Signature-256 header value, webhook only
	Body      []byte // raw webhook payload the signature covers
	Token     string // trusted CI identity, Action only
}

// Guard performs the ordered access checks. All state it mutates lives in the
// rate limiter, which is safe for concurrent use.
type Guard struct {
	cfg     *config.Config
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// New creates a Guard over the configuration snapshot.
func New(cfg *config.Config, limiter *ratelimit.Limiter, logger *slog.Logger) *Guard {
	return &Guard{cfg: cfg, limiter: limiter, logger: logger}
}

// Authorize runs the checks in order, short-circuiting on the first failure:
// feature toggle, authenticity (signature or trusted CI identity), source IP
// policy, rate limit. A nil return means accepted. The rate limit bounds
// attempts, not successes: the counter for the identity is bumped whether or
// not the pipeline later succeeds.
func (g *Guard) Authorize(req Request) error {
	if req.Source == core.SourceWebhook && !g.cfg.Features.EnableWebhooks {
		return &core.AuthzError{Reason: core.ReasonFeatureDisabled, Detail: "webhooks are disabled"}
	}

	if err := g.checkAuthenticity(req); err != nil {
		return err
	}

	// The IP policy is a gate of its own: a valid signature from a
	// disallowed address is still rejected, and an unrecognized address with
	// a valid signature passes when no allowlist is configured.
	if err := g.checkSourceIP(req); err != nil {
		return err
	}

	if ok, retryAfter := g.limiter.Allow(req.Identity); !ok {
		g.logger.Warn("request rate limited", "identity", req.Identity, "retry_after", retryAfter)
		return &core.AuthzError{
			Reason:     core.ReasonRateLimited,
			Detail:     fmt.Sprintf("identity %s exceeded %d requests per %s", req.Identity, g.cfg.RateLimit.MaxRequests, g.cfg.RateLimit.Window),
			RetryAfter: retryAfter,
		}
	}

	return nil
}

func (g *Guard) checkAuthenticity(req Request) error {
	switch req.Source {
	case core.SourceWebhook:
		if err := github.ValidateSignature(req.Signature, req.Body, []byte(g.cfg.Server.WebhookSecret)); err != nil {
			g.logger.Warn("webhook signature validation failed", "remote_ip", req.RemoteIP, "error", err)
			return &core.AuthzError{Reason: core.ReasonUnauthorized, Detail: "signature mismatch"}
		}
	case core.SourceAction:
		if req.Token == "" {
			return &core.AuthzError{Reason: core.ReasonUnauthorized, Detail: "missing hosting-API token"}
		}
	default:
		return &core.AuthzError{Reason: core.ReasonUnauthorized, Detail: fmt.Sprintf("unknown event source %q", req.Source)}
	}
	return nil
}

func (g *Guard) checkSourceIP(req Request) error {
	if len(g.cfg.Server.AllowedIPs) == 0 || req.Source != core.SourceWebhook {
		return nil
	}

	ip := net.ParseIP(req.RemoteIP)
	if ip == nil {
		return &core.AuthzError{Reason: core.ReasonUnauthorized, Detail: fmt.Sprintf("unparseable remote address %q", req.RemoteIP)}
	}

	for _, allowed := range g.cfg.Server.AllowedIPs {
		if _, cidr, err := net.ParseCIDR(allowed); err == nil {
			if cidr.Contains(ip) {
				return nil
			}
			continue
		}
		if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(ip) {
			return nil
		}
	}

	g.logger.Warn("request from disallowed address", "remote_ip", req.RemoteIP)
	return &core.AuthzError{Reason: core.ReasonUnauthorized, Detail: fmt.Sprintf("address %s not in allowlist", req.RemoteIP)}
}
