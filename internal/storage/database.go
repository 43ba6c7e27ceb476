// Package storage persists review pipeline outcomes for later inspection.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

// ErrNotFound is returned when no review record exists for a query.
var ErrNotFound = errors.New("review not found")

// Store defines the interface for all database operations.
type Store interface {
	SaveReview(ctx context.Context, review *core.Review) error
	GetLatestReviewForPR(ctx context.Context, repoFullName string, prNumber int) (*core.Review, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a new Store backed by Postgres.
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

// SaveReview inserts a new review record into the database.
func (s *postgresStore) SaveReview(ctx context.Context, review *core.Review) error {
	query := `INSERT INTO reviews (repo_full_name, pr_number, head_sha, state, files_total, files_failed, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		review.RepoFullName, review.PRNumber, review.HeadSHA, review.State,
		review.FilesTotal, review.FilesFailed, review.Summary, time.Now())
	return err
}

// GetLatestReviewForPR retrieves the most recent review for a given pull request.
func (s *postgresStore) GetLatestReviewForPR(ctx context.Context, repoFullName string, prNumber int) (*core.Review, error) {
	query := `
		SELECT id, repo_full_name, pr_number, head_sha, state, files_total, files_failed, summary, created_at
		FROM reviews
		WHERE repo_full_name = $1 AND pr_number = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var r core.Review
	err := s.db.GetContext(ctx, &r, query, repoFullName, prNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s#%d", ErrNotFound, repoFullName, prNumber)
		}
		return nil, err
	}
	return &r, nil
}

// noopStore discards writes and reports every lookup as missing. Used when no
// database is configured, which is the normal case for Action mode.
type noopStore struct{}

// NewNoopStore creates a Store that persists nothing.
func NewNoopStore() Store {
	return noopStore{}
}

func (noopStore) SaveReview(context.Context, *core.Review) error { return nil }

func (noopStore) GetLatestReviewForPR(_ context.Context, repoFullName string, prNumber int) (*core.Review, error) {
	return nil, fmt.Errorf("%w: %s#%d", ErrNotFound, repoFullName, prNumber)
}
