// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/rjtruitt/CodeReviewBot/internal/app"
	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/guard"
	"github.com/rjtruitt/CodeReviewBot/internal/jobs"
	"github.com/rjtruitt/CodeReviewBot/internal/openai"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/internal/server"
)

// InitializeApp builds the fully wired daemon application from a config path.
func InitializeApp(ctx context.Context, configPath string) (*app.App, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	loggerConfig := provideLoggerConfig(cfg)
	logWriter := provideLogWriter(cfg)
	logger := provideSlogLogger(loggerConfig, logWriter)

	dbConn, dbCleanup, err := provideDatabase(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := provideStore(dbConn)

	limiter := provideLimiter(cfg)
	accessGuard := guard.New(cfg, limiter, logger)
	configResolver := resolver.New(cfg)

	openaiClient := openai.NewClient(provideOpenAIConfig(cfg), logger)
	promptManager, err := openai.NewPromptManager()
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}

	reviewDispatcher := provideDispatcher(openaiClient, promptManager, cfg, logger)
	publisher := review.NewPublisher(cfg.Publish, logger)
	summarizer := review.NewSummarizer(openaiClient, logger)
	clientFactory := github.NewClientFactory(provideGitHubConfig(cfg), logger)

	reviewJob := jobs.NewReviewJob(cfg, configResolver, reviewDispatcher, publisher, clientFactory, store, logger)
	jobDispatcher := jobs.NewDispatcher(reviewJob, cfg.MaxWorkers, logger)

	srv := server.NewServer(ctx, cfg, accessGuard, jobDispatcher, store, clientFactory, configResolver, summarizer, logger)
	application := app.NewApp(ctx, cfg, srv, jobDispatcher, dbConn, logger)

	cleanup := func() {
		dbCleanup()
	}
	return application, cleanup, nil
}
