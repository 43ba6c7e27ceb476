// Package review turns a pull-request event into backend review calls and
// publishes the aggregated results back to the pull request.
package review

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/retry"
)

// Generator is the generative backend producing review text from a prompt.
//
//go:generate mockgen -destination=../../mocks/mock_generator.go -package=mocks . Generator
type Generator interface {
	Generate(ctx context.Context, credential core.Secret, model string, temperature float64, prompt string) (string, error)
}

// PromptBuilder renders the prompt for one changed file under an effective
// configuration.
type PromptBuilder interface {
	BuildReviewPrompt(cfg core.EffectiveConfig, file core.ChangedFile, securityChecks bool) (string, error)
}

// ConfigFunc supplies the resolved effective configuration for a file.
type ConfigFunc func(core.ChangedFile) (core.EffectiveConfig, error)

// Dispatcher fans review requests out to the backend, one per changed file,
// bounded by the per-event concurrency cap.
type Dispatcher struct {
	gen            Generator
	prompts        PromptBuilder
	cfg            config.DispatchConfig
	securityChecks bool
	retrier        *retry.Retrier
	logger         *slog.Logger
}

// NewDispatcher creates a Dispatcher. securityChecks augments every prompt
// with the security instruction block.
func NewDispatcher(gen Generator, prompts PromptBuilder, cfg config.DispatchConfig, securityChecks bool, logger *slog.Logger) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	retrier := retry.New(retry.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialDelay:   cfg.InitialBackoff,
		MaxDelay:       cfg.MaxBackoff,
		Multiplier:     2.0,
		JitterFraction: 0.3,
	}, backendRetryable)

	return &Dispatcher{
		gen:            gen,
		prompts:        prompts,
		cfg:            cfg,
		securityChecks: securityChecks,
		retrier:        retrier,
		logger:         logger,
	}
}

// backendRetryable admits another attempt for 5xx and transport failures plus
// per-call timeouts. 4xx responses are terminal for the file.
func backendRetryable(err error) bool {
	var backendErr *core.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Dispatch reviews every changed file of the event. It always returns exactly
// one ReviewResult per ChangedFile, in the original file order; a failing
// file records its error and never blocks the others. Calls for distinct
// files run concurrently with at most MaxConcurrent in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, event *core.ReviewEvent, configFor ConfigFunc) []core.ReviewResult {
	results := make([]core.ReviewResult, len(event.Files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrent)

	for i, file := range event.Files {
		g.Go(func() error {
			results[i] = d.reviewFile(ctx, file, configFor)
			return nil
		})
	}
	// Worker funcs never return errors; failures live in the results.
	_ = g.Wait()

	return results
}

func (d *Dispatcher) reviewFile(ctx context.Context, file core.ChangedFile, configFor ConfigFunc) core.ReviewResult {
	result := core.ReviewResult{Path: file.Path}

	cfg, err := configFor(file)
	if err != nil {
		result.Err = err
		return result
	}
	result.Model = cfg.Model

	prompt, err := d.prompts.BuildReviewPrompt(cfg, file, d.securityChecks)
	if err != nil {
		result.Err = err
		return result
	}

	var text string
	err = d.retrier.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()

		var genErr error
		text, genErr = d.gen.Generate(callCtx, cfg.Credential, cfg.Model, cfg.Temperature, prompt)
		return genErr
	})
	if err != nil {
		d.logger.Warn("review generation failed", "file", file.Path, "model", cfg.Model, "error", err)
		result.Err = err
		return result
	}

	result.Review = text
	return result
}
