package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/retry"
)

// CommentPoster posts a single comment onto a pull request.
type CommentPoster interface {
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// Publisher delivers aggregated review results to the hosting API. Posting is
// sequential: hosting-API rate limits are stricter than the backend's, so
// there is nothing to gain from fanning out here.
type Publisher struct {
	cfg     config.PublishConfig
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg config.PublishConfig, logger *slog.Logger) *Publisher {
	retrier := retry.New(retry.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialDelay:   cfg.Backoff,
		MaxDelay:       cfg.Backoff * 8,
		Multiplier:     2.0,
		JitterFraction: 0.3,
	}, publishRetryable)
	return &Publisher{cfg: cfg, retrier: retrier, logger: logger}
}

// publishRetryable: hosting-API posting failures (network blips, secondary
// rate limits) are worth retrying within the budget; only cancellation is
// terminal.
func publishRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Publish posts every non-failed result as pull-request comments, one per
// file or one consolidated comment depending on configuration. The returned
// outcome names exactly the files whose reviews were not delivered; when any
// delivery failed the error is a *core.PublishError carrying the same list.
func (p *Publisher) Publish(ctx context.Context, poster CommentPoster, event *core.ReviewEvent, results []core.ReviewResult) (core.PublishOutcome, error) {
	deliverable := make([]core.ReviewResult, 0, len(results))
	for _, r := range results {
		if !r.Failed() {
			deliverable = append(deliverable, r)
		}
	}

	var outcome core.PublishOutcome
	if len(deliverable) == 0 {
		return outcome, nil
	}

	switch p.cfg.Mode {
	case config.PublishConsolidated:
		body := formatConsolidatedComment(event, deliverable)
		if err := p.post(ctx, poster, event, body); err != nil {
			for _, r := range deliverable {
				outcome.Failed = append(outcome.Failed, r.Path)
			}
			p.logger.Error("consolidated comment delivery failed", "repo", event.RepoFullName(), "pr", event.PRNumber, "error", err)
			return outcome, &core.PublishError{FailedFiles: outcome.Failed, Err: err}
		}
		for _, r := range deliverable {
			outcome.Published = append(outcome.Published, r.Path)
		}
	default:
		var lastErr error
		for _, r := range deliverable {
			if err := p.post(ctx, poster, event, formatFileComment(r)); err != nil {
				p.logger.Error("comment delivery failed", "repo", event.RepoFullName(), "pr", event.PRNumber, "file", r.Path, "error", err)
				outcome.Failed = append(outcome.Failed, r.Path)
				lastErr = err
				continue
			}
			outcome.Published = append(outcome.Published, r.Path)
		}
		if len(outcome.Failed) > 0 {
			return outcome, &core.PublishError{FailedFiles: outcome.Failed, Err: lastErr}
		}
	}

	return outcome, nil
}

func (p *Publisher) post(ctx context.Context, poster CommentPoster, event *core.ReviewEvent, body string) error {
	return p.retrier.Do(ctx, func(ctx context.Context) error {
		return poster.CreateComment(ctx, event.RepoOwner, event.RepoName, event.PRNumber, body)
	})
}

// formatFileComment renders one file's review with its provenance header.
func formatFileComment(r core.ReviewResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Code review: `%s`\n", r.Path)
	if r.Model != "" {
		fmt.Fprintf(&b, "_Model: %s_\n", r.Model)
	}
	b.WriteString("\n")
	b.WriteString(r.Review)
	return b.String()
}

// formatConsolidatedComment renders all reviews as one comment with a
// section per file, in the original file order.
func formatConsolidatedComment(event *core.ReviewEvent, results []core.ReviewResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Code review for #%d\n", event.PRNumber)
	for _, r := range results {
		b.WriteString("\n")
		b.WriteString(formatFileComment(r))
		b.WriteString("\n")
	}
	return b.String()
}
