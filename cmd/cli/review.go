package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
	"github.com/rjtruitt/CodeReviewBot/internal/jobs"
	"github.com/rjtruitt/CodeReviewBot/internal/logger"
	"github.com/rjtruitt/CodeReviewBot/internal/openai"
	"github.com/rjtruitt/CodeReviewBot/internal/ratelimit"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/internal/storage"
)

// exit status for authorization or configuration failures, distinct from the
// 1-100 failed-file range.
const exitAuthzFailure = 101

// Color definitions
var (
	titleColor   = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
)

var reviewCmd = &cobra.Command{
	Use:   "review [workspace] [owner/repo] [pr-number] [token]",
	Short: "Review a pull request and post the results, synchronously",
	Long: `Review a pull request and post the results, synchronously.

Intended for CI: the exit code reports the result. 0 means every file was
reviewed and published; 1-100 is the number of files that failed (capped);
101 means the run was rejected before any review happened.

Examples:
  crb-cli review "$GITHUB_WORKSPACE" acme/api 123 "$GITHUB_TOKEN"`,
	Args: cobra.ExactArgs(4),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(reviewCmd)
}

func runReview(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	workspace := args[0]
	fullName := args[1]
	prNumber, err := strconv.Atoi(args[2])
	if err != nil || prNumber <= 0 {
		exitCode = exitAuthzFailure
		return fmt.Errorf("invalid pull request number %q", args[2])
	}
	token := args[3]

	owner, repoName, err := core.ParseRepoFullName(fullName)
	if err != nil {
		exitCode = exitAuthzFailure
		return err
	}

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(workspace, "config.yml")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		exitCode = exitAuthzFailure
		return fmt.Errorf("failed to load config: %w\n\nTip: Check that %s exists and is valid", err, cfgPath)
	}

	// Logs go to stderr so stdout stays a clean review summary.
	log := logger.NewLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(log)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.IdleTTL, time.Now)
	accessGuard := guard.New(cfg, limiter, log)
	if err := accessGuard.Authorize(guard.Request{
		Source:   core.SourceAction,
		Identity: fullName,
		Token:    token,
	}); err != nil {
		exitCode = exitAuthzFailure
		return fmt.Errorf("request rejected: %w", err)
	}

	titleColor.Println("CodeReviewBot - PR Review")
	dimColor.Printf("   Target: %s#%d\n\n", fullName, prNumber)

	promptManager, err := openai.NewPromptManager()
	if err != nil {
		exitCode = exitAuthzFailure
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}

	job := jobs.NewReviewJob(
		cfg,
		resolver.New(cfg),
		review.NewDispatcher(openai.NewClient(cfg.OpenAI, log), promptManager, cfg.Dispatch, cfg.Features.EnableSecurityChecks, log),
		review.NewPublisher(cfg.Publish, log),
		github.NewClientFactory(cfg.GitHub, log),
		storage.NewNoopStore(),
		log,
	)

	event := &core.ReviewEvent{
		RepoOwner: owner,
		RepoName:  repoName,
		PRNumber:  prNumber,
		Source:    core.SourceAction,
		Token:     token,
	}

	outcome, runErr := job.Run(ctx, event)
	printOutcome(&outcome)

	if outcome.State == core.StateFailed {
		exitCode = exitAuthzFailure
		return runErr
	}

	if failed := outcome.FailedFileCount(); failed > 0 {
		if failed > 100 {
			failed = 100
		}
		exitCode = failed
	}
	return nil
}

func printOutcome(outcome *core.Outcome) {
	published := make(map[string]bool, len(outcome.Publish.Published))
	for _, p := range outcome.Publish.Published {
		published[p] = true
	}

	fmt.Println()
	for _, r := range outcome.Results {
		switch {
		case r.Failed():
			errorColor.Printf("  ✗ %s", r.Path)
			dimColor.Printf("  (%v)\n", r.Err)
		case published[r.Path]:
			successColor.Printf("  ✓ %s", r.Path)
			dimColor.Printf("  (%s)\n", r.Model)
		default:
			errorColor.Printf("  ✗ %s", r.Path)
			dimColor.Print("  (review generated but not published)\n")
		}
	}

	fmt.Println()
	failed := outcome.FailedFileCount()
	if failed == 0 {
		successColor.Printf("Reviewed %d files, all published.\n", len(outcome.Results))
		return
	}
	errorColor.Printf("Reviewed %d files, %d failed.\n", len(outcome.Results), failed)
}
