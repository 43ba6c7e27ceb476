// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

// ClientFactory builds an authenticated Client for a review event. The
// concrete authentication path depends on deployment: GitHub App installation
// tokens when the App credentials are configured, a Personal Access Token
// otherwise.
type ClientFactory interface {
	ClientFor(ctx context.Context, event *core.ReviewEvent) (Client, error)
}

type clientFactory struct {
	cfg    config.GitHubConfig
	logger *slog.Logger
}

// NewClientFactory creates a ClientFactory from the GitHub section of the
// configuration.
func NewClientFactory(cfg config.GitHubConfig, logger *slog.Logger) ClientFactory {
	return &clientFactory{cfg: cfg, logger: logger}
}

// ClientFor picks the strongest available authentication for the event:
// the event's own token first, then an App installation token, then the
// configured fallback PAT.
func (f *clientFactory) ClientFor(ctx context.Context, event *core.ReviewEvent) (Client, error) {
	if event.Token != "" {
		return NewPATClient(ctx, event.Token, f.logger), nil
	}
	if f.cfg.AppID > 0 && f.cfg.PrivateKeyPath != "" && event.InstallationID > 0 {
		return f.installationClient(ctx, event.InstallationID)
	}
	if f.cfg.DefaultAPIKey != "" {
		return NewPATClient(ctx, f.cfg.DefaultAPIKey, f.logger), nil
	}
	return nil, fmt.Errorf("no GitHub credentials available for %s/%s", event.RepoOwner, event.RepoName)
}

// installationClient creates a GitHub client authenticated as a specific App
// installation.
func (f *clientFactory) installationClient(ctx context.Context, installationID int64) (Client, error) {
	privateKey, err := os.ReadFile(f.cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", f.cfg.PrivateKeyPath, err)
	}

	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, f.cfg.AppID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTransport})

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token for installation ID %d: %w", installationID, err)
	}
	if token.GetToken() == "" {
		return nil, fmt.Errorf("received an empty installation token")
	}
	f.logger.Info("created installation token", "installation_id", installationID, "expires_at", token.GetExpiresAt())

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.GetToken()})
	tc := oauth2.NewClient(ctx, ts)
	return NewGitHubClient(github.NewClient(tc), f.logger), nil
}
