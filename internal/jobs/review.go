// Package jobs defines background tasks such as automated code reviews.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/language"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/internal/storage"
)

// ReviewJob drives one pull-request event through the full pipeline:
// config resolution, backend dispatch, publishing, persistence. Each run
// emits exactly one Outcome and reaches exactly one terminal state.
type ReviewJob struct {
	cfg        *config.Config
	resolver   *resolver.Resolver
	dispatcher *review.Dispatcher
	publisher  *review.Publisher
	clients    github.ClientFactory
	store      storage.Store
	logger     *slog.Logger
}

// NewReviewJob creates a ReviewJob.
func NewReviewJob(
	cfg *config.Config,
	res *resolver.Resolver,
	dispatcher *review.Dispatcher,
	publisher *review.Publisher,
	clients github.ClientFactory,
	store storage.Store,
	logger *slog.Logger,
) core.Job {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if store == nil {
		store = storage.NewNoopStore()
	}
	return &ReviewJob{
		cfg:        cfg,
		resolver:   res,
		dispatcher: dispatcher,
		publisher:  publisher,
		clients:    clients,
		store:      store,
		logger:     logger,
	}
}

// Run executes the review pipeline for one event. The event deadline bounds
// resolution and dispatch; results that completed before the deadline are
// still published and persisted on a detached context, but the event itself
// ends Failed with a partial-completion reason.
func (j *ReviewJob) Run(ctx context.Context, event *core.ReviewEvent) (core.Outcome, error) {
	outcome := core.Outcome{State: core.StateAuthorized}

	if err := j.validateEvent(event); err != nil {
		return j.fail(ctx, event, outcome, fmt.Errorf("invalid review event: %w", err))
	}

	log := j.logger.With("repo", event.RepoFullName(), "pr", event.PRNumber)
	log.Info("starting review job", "source", event.Source)

	deadline := j.cfg.Server.EventDeadline
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ghClient, err := j.clients.ClientFor(runCtx, event)
	if err != nil {
		return j.fail(ctx, event, outcome, fmt.Errorf("failed to create hosting client: %w", err))
	}

	if err := j.hydrateEvent(runCtx, ghClient, event); err != nil {
		return j.fail(ctx, event, outcome, err)
	}
	if len(event.Files) == 0 {
		log.Info("pull request has no reviewable files")
		outcome.State = core.StateDone
		j.persist(ctx, event, &outcome)
		return outcome, nil
	}

	configFor, err := j.resolveConfigs(event)
	if err != nil {
		return j.fail(ctx, event, outcome, err)
	}
	outcome.State = core.StateConfigsResolved

	outcome.Results = j.dispatcher.Dispatch(runCtx, event, configFor)
	outcome.State = core.StateDispatched
	deadlineErr := runCtx.Err()

	// Publishing proceeds even when the event deadline fired mid-dispatch;
	// completed reviews still reach the pull request.
	pubCtx, pubCancel := context.WithTimeout(context.WithoutCancel(runCtx), time.Minute)
	defer pubCancel()

	outcome.Publish, err = j.publisher.Publish(pubCtx, ghClient, event, outcome.Results)
	outcome.State = core.StatePublished
	if err != nil {
		outcome.Err = err
	}

	if deadlineErr != nil {
		completed := 0
		for _, r := range outcome.Results {
			if !r.Failed() {
				completed++
			}
		}
		outcome.State = core.StateFailed
		outcome.Err = errors.Join(
			fmt.Errorf("review incomplete: %d of %d files finished before the event deadline: %w",
				completed, len(outcome.Results), deadlineErr),
			outcome.Err,
		)
		log.Error("review job hit the event deadline",
			"completed", completed,
			"files", len(outcome.Results),
			"published", len(outcome.Publish.Published),
		)
		j.persist(ctx, event, &outcome)
		return outcome, outcome.Err
	}

	outcome.State = core.StateDone
	j.persist(ctx, event, &outcome)

	log.Info("review job finished",
		"files", len(outcome.Results),
		"failed", outcome.FailedFileCount(),
		"published", len(outcome.Publish.Published),
	)
	return outcome, outcome.Err
}

// validateEvent ensures the event carries everything the pipeline needs.
func (j *ReviewJob) validateEvent(event *core.ReviewEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.RepoOwner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if event.RepoName == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if event.PRNumber <= 0 {
		return fmt.Errorf("pull request number must be positive, got: %d", event.PRNumber)
	}
	return nil
}

// hydrateEvent fills in head SHA, author and changed files from the hosting
// API when the boundary adapter did not supply them. Files without a patch
// (binary blobs, pure renames) are skipped.
func (j *ReviewJob) hydrateEvent(ctx context.Context, ghClient github.Client, event *core.ReviewEvent) error {
	if event.HeadSHA == "" || event.Author == "" {
		pr, err := ghClient.GetPullRequest(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
		if err != nil {
			return fmt.Errorf("failed to get pull request details: %w", err)
		}
		if event.HeadSHA == "" {
			event.HeadSHA = pr.HeadSHA
		}
		if event.Author == "" {
			event.Author = pr.Author
		}
	}

	if len(event.Files) > 0 {
		return nil
	}

	files, err := ghClient.GetChangedFiles(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return fmt.Errorf("failed to list changed files: %w", err)
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

// resolveConfigs resolves every file's effective configuration up front so
// a configuration-level failure rejects the whole event before any backend
// call is made.
func (j *ReviewJob) resolveConfigs(event *core.ReviewEvent) (review.ConfigFunc, error) {
	configs := make(map[string]core.EffectiveConfig, len(event.Files))
	for _, f := range event.Files {
		cfg, err := j.resolver.Resolve(event.RepoOwner, event.RepoName, event.Author, f.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve configuration for %s: %w", f.Path, err)
		}
		configs[f.Path] = cfg
	}
	return func(f core.ChangedFile) (core.EffectiveConfig, error) {
		cfg, ok := configs[f.Path]
		if !ok {
			return core.EffectiveConfig{}, fmt.Errorf("no resolved configuration for %s", f.Path)
		}
		return cfg, nil
	}, nil
}

// fail finalizes an event that cannot continue through the pipeline.
func (j *ReviewJob) fail(ctx context.Context, event *core.ReviewEvent, outcome core.Outcome, err error) (core.Outcome, error) {
	outcome.State = core.StateFailed
	outcome.Err = err
	if event == nil {
		j.logger.Error("review job failed", "error", err)
		return outcome, err
	}
	j.logger.Error("review job failed", "repo", event.RepoFullName(), "pr", event.PRNumber, "error", err)
	j.persist(ctx, event, &outcome)
	return outcome, err
}

// persist records the run for later inspection. Persistence failures are
// logged, never propagated: the review itself already happened.
func (j *ReviewJob) persist(ctx context.Context, event *core.ReviewEvent, outcome *core.Outcome) {
	rec := &core.Review{
		RepoFullName: event.RepoFullName(),
		PRNumber:     event.PRNumber,
		HeadSHA:      event.HeadSHA,
		State:        string(outcome.State),
		FilesTotal:   len(outcome.Results),
		FilesFailed:  outcome.FailedFileCount(),
		Summary:      summarize(outcome),
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := j.store.SaveReview(saveCtx, rec); err != nil {
		j.logger.Error("failed to persist review outcome", "repo", rec.RepoFullName, "pr", rec.PRNumber, "error", err)
	}
}

func summarize(outcome *core.Outcome) string {
	if outcome.Err != nil {
		return outcome.Err.Error()
	}
	return fmt.Sprintf("%d files reviewed, %d published, %d failed",
		len(outcome.Results), len(outcome.Publish.Published), outcome.FailedFileCount())
}
