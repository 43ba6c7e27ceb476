// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v73/github"
)

// EventSource identifies which boundary adapter produced a ReviewEvent.
type EventSource string

const (
	SourceWebhook EventSource = "webhook"
	SourceAction  EventSource = "action"
)

// ChangedFile is a single file touched by a pull request. Language drives the
// language-profile lookup; Diff is treated as an opaque text payload.
type ChangedFile struct {
	Path     string
	Language string
	Diff     string
}

// ReviewEvent is the internal, read-only view of one pull request to review.
// Both entry points (webhook daemon and Action invocation) produce this same
// shape; nothing downstream branches on the source.
type ReviewEvent struct {
	RepoOwner      string
	RepoName       string
	PRNumber       int
	Author         string
	HeadSHA        string
	Source         EventSource
	Token          string // hosting-API token for Action mode; empty in daemon mode
	InstallationID int64

	// Files is populated by the boundary adapter when the payload carries the
	// changed files, otherwise the orchestrator fetches them from the hosting API.
	Files []ChangedFile
}

// RepoFullName returns the canonical "owner/name" form.
func (e *ReviewEvent) RepoFullName() string {
	return e.RepoOwner + "/" + e.RepoName
}

// EventFromPullRequest transforms a raw GitHub PullRequestEvent into the
// application's internal ReviewEvent representation. It acts as an
// anti-corruption layer: the payload must be a freshly opened or updated pull
// request and carry complete repository and author information.
func EventFromPullRequest(event *github.PullRequestEvent) (*ReviewEvent, error) {
	switch event.GetAction() {
	case "opened", "synchronize", "reopened":
	default:
		return nil, fmt.Errorf("pull request action %q is not reviewed", event.GetAction())
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetOwner() == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, fmt.Errorf("repository or owner information is missing from the event")
	}

	pr := event.GetPullRequest()
	if pr.GetNumber() <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", pr.GetNumber())
	}
	if pr.GetUser().GetLogin() == "" {
		return nil, fmt.Errorf("pull request author is missing from the event")
	}

	return &ReviewEvent{
		RepoOwner:      repo.GetOwner().GetLogin(),
		RepoName:       repo.GetName(),
		PRNumber:       pr.GetNumber(),
		Author:         pr.GetUser().GetLogin(),
		HeadSHA:        pr.GetHead().GetSHA(),
		Source:         SourceWebhook,
		InstallationID: event.GetInstallation().GetID(),
	}, nil
}

// ParseRepoFullName splits an "owner/repo" string into its two parts.
func ParseRepoFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name %q, expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
