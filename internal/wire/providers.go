package wire

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/wire"

	"github.com/rjtruitt/CodeReviewBot/internal/app"
	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/db"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
	"github.com/rjtruitt/CodeReviewBot/internal/jobs"
	"github.com/rjtruitt/CodeReviewBot/internal/logger"
	"github.com/rjtruitt/CodeReviewBot/internal/openai"
	"github.com/rjtruitt/CodeReviewBot/internal/ratelimit"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/internal/server"
	"github.com/rjtruitt/CodeReviewBot/internal/storage"
)

// AppSet groups the providers shared by the daemon and CLI entry points.
var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.LoadConfig,
	resolver.New,
	guard.New,
	openai.NewClient,
	openai.NewPromptManager,
	review.NewPublisher,
	review.NewSummarizer,
	github.NewClientFactory,
	jobs.NewDispatcher,
	jobs.NewReviewJob,
	provideLimiter,
	provideDispatcher,
	provideDatabase,
	provideStore,
	provideLoggerConfig,
	provideLogWriter,
	provideSlogLogger,
	provideOpenAIConfig,
	provideGitHubConfig,
	wire.Bind(new(review.Generator), new(*openai.Client)),
	wire.Bind(new(review.PromptBuilder), new(*openai.PromptManager)),
)

// provideDatabase opens the optional review-history database. A nil handle
// with a no-op cleanup means persistence is disabled.
func provideDatabase(cfg *config.Config) (*db.DB, func(), error) {
	if !cfg.Database.Enabled() {
		return nil, func() {}, nil
	}
	return db.NewDatabase(cfg.Database)
}

func provideStore(dbConn *db.DB) storage.Store {
	if dbConn == nil {
		return storage.NewNoopStore()
	}
	return storage.NewStore(dbConn.DB)
}

func provideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.IdleTTL, time.Now)
}

func provideDispatcher(gen review.Generator, prompts review.PromptBuilder, cfg *config.Config, log *slog.Logger) *review.Dispatcher {
	return review.NewDispatcher(gen, prompts, cfg.Dispatch, cfg.Features.EnableSecurityChecks, log)
}

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.Logging
}

func provideOpenAIConfig(cfg *config.Config) config.OpenAIConfig {
	return cfg.OpenAI
}

func provideGitHubConfig(cfg *config.Config) config.GitHubConfig {
	return cfg.GitHub
}

func provideLogWriter(cfg *config.Config) io.Writer {
	switch cfg.Logging.Output {
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		f, err := os.OpenFile("codereviewbot.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			slog.Error("failed to open log file, falling back to stdout", "error", err)
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	return logger.NewLogger(loggerConfig, writer)
}
