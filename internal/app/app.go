// Package app initializes and orchestrates the main components of the review
// service: configuration, HTTP server, job workers and storage.
package app

import (
	"context"
	"log/slog"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/db"
	"github.com/rjtruitt/CodeReviewBot/internal/server"
)

// App holds the main application components.
type App struct {
	ctx        context.Context
	cfg        *config.Config
	server     *server.Server
	logger     *slog.Logger
	dispatcher core.JobDispatcher
	dbConn     *db.DB
}

// NewApp assembles the application from its wired components. dbConn may be
// nil when no database is configured.
func NewApp(
	ctx context.Context,
	cfg *config.Config,
	srv *server.Server,
	dispatcher core.JobDispatcher,
	dbConn *db.DB,
	logger *slog.Logger,
) *App {
	return &App{
		ctx:        ctx,
		cfg:        cfg,
		server:     srv,
		logger:     logger,
		dispatcher: dispatcher,
		dbConn:     dbConn,
	}
}

// Start runs the HTTP server and blocks until it stops.
func (a *App) Start() error {
	a.logger.Info("starting review service",
		"server_port", a.cfg.Server.Port,
		"max_workers", a.cfg.MaxWorkers,
		"webhooks_enabled", a.cfg.Features.EnableWebhooks,
	)

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down review service")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Stop the job dispatcher, allowing in-flight jobs to finish.
	a.dispatcher.Stop()

	if a.dbConn != nil {
		a.logger.Info("closing database connection")
		if err := a.dbConn.Close(); err != nil {
			a.logger.Error("error closing database", "error", err)
		}
	}

	if serverErr != nil {
		a.logger.Error("review service stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("review service stopped successfully")
	return nil
}
