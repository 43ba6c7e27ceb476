package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/github"
	"github.com/rjtruitt/CodeReviewBot/internal/openai"
	"github.com/rjtruitt/CodeReviewBot/internal/resolver"
	"github.com/rjtruitt/CodeReviewBot/internal/review"
	"github.com/rjtruitt/CodeReviewBot/mocks"
)

type stubFactory struct {
	client github.Client
	err    error
}

func (s *stubFactory) ClientFor(context.Context, *core.ReviewEvent) (github.Client, error) {
	return s.client, s.err
}

type memStore struct {
	mu      sync.Mutex
	records []*core.Review
}

func (m *memStore) SaveReview(_ context.Context, r *core.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memStore) GetLatestReviewForPR(context.Context, string, int) (*core.Review, error) {
	return nil, errors.New("not found")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptrTemp(v float64) *float64 { return &v }

func pipelineConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{EventDeadline: time.Minute},
		OpenAI: config.OpenAIConfig{
			DefaultModel:       "gpt-4o-mini",
			DefaultTemperature: 0.7,
		},
		GitHub:   config.GitHubConfig{DefaultAPIKey: "default-key"},
		UserKeys: map[string]config.KeyEntry{"alice": {APIKey: "alice-key"}},
		Languages: map[string]config.LanguageProfile{
			"python": {Model: "gpt-4o", Temperature: ptrTemp(0.2)},
		},
		Features: config.FeatureConfig{UseCustomPrompts: true},
		Dispatch: config.DispatchConfig{
			MaxConcurrent:  4,
			CallTimeout:    time.Second,
			MaxRetries:     0,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		Publish: config.PublishConfig{Mode: config.PublishPerFile, MaxRetries: 0, Backoff: time.Millisecond},
	}
}

func newJob(t *testing.T, cfg *config.Config, gen review.Generator, factory github.ClientFactory, store *memStore) core.Job {
	t.Helper()
	pm, err := openai.NewPromptManager()
	require.NoError(t, err)

	log := testLogger()
	return NewReviewJob(
		cfg,
		resolver.New(cfg),
		review.NewDispatcher(gen, pm, cfg.Dispatch, cfg.Features.EnableSecurityChecks, log),
		review.NewPublisher(cfg.Publish, log),
		factory,
		store,
		log,
	)
}

func TestReviewJob_FullPipeline(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := pipelineConfig()

	gh := mocks.NewMockClient(ctrl)
	gh.EXPECT().GetChangedFiles(gomock.Any(), "acme", "api", 42).Return([]github.ChangedFile{
		{Filename: "app/main.py", Patch: "+import os"},
		{Filename: "lib/util.py", Patch: "+def f(): pass"},
		{Filename: "assets/logo.bin", Patch: "+blob"},
		{Filename: "moved_only.py", Patch: ""},
	}, nil)

	var mu sync.Mutex
	credentialByModel := map[string]string{}
	gen := mocks.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cred core.Secret, model string, _ float64, _ string) (string, error) {
			mu.Lock()
			credentialByModel[model] = cred.Value()
			mu.Unlock()
			return "review body", nil
		}).Times(3)

	gh.EXPECT().CreateComment(gomock.Any(), "acme", "api", 42, gomock.Any()).Return(nil).Times(3)

	store := &memStore{}
	job := newJob(t, cfg, gen, &stubFactory{client: gh}, store)

	event := &core.ReviewEvent{
		RepoOwner: "acme",
		RepoName:  "api",
		PRNumber:  42,
		Author:    "alice",
		HeadSHA:   "abc123",
		Source:    core.SourceWebhook,
	}

	outcome, err := job.Run(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, core.StateDone, outcome.State)
	require.Len(t, outcome.Results, 3, "patchless files are skipped")
	assert.Zero(t, outcome.FailedFileCount())
	assert.ElementsMatch(t, []string{"app/main.py", "lib/util.py", "assets/logo.bin"}, outcome.Publish.Published)

	// Python files use the language profile model, the binary blob falls back
	// to the global default; all three bill against the author's key.
	mu.Lock()
	assert.Equal(t, "alice-key", credentialByModel["gpt-4o"])
	assert.Equal(t, "alice-key", credentialByModel["gpt-4o-mini"])
	mu.Unlock()

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "acme/api", rec.RepoFullName)
	assert.Equal(t, 42, rec.PRNumber)
	assert.Equal(t, string(core.StateDone), rec.State)
	assert.Equal(t, 3, rec.FilesTotal)
	assert.Zero(t, rec.FilesFailed)
}

func TestReviewJob_HydratesMissingMetadata(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := pipelineConfig()

	gh := mocks.NewMockClient(ctrl)
	gh.EXPECT().GetPullRequest(gomock.Any(), "acme", "api", 7).Return(&github.PullRequest{
		Number:  7,
		Author:  "alice",
		HeadSHA: "feedface",
		State:   "open",
	}, nil)
	gh.EXPECT().GetChangedFiles(gomock.Any(), "acme", "api", 7).Return([]github.ChangedFile{
		{Filename: "a.py", Patch: "+x"},
	}, nil)

	gen := mocks.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any(), "gpt-4o", gomock.Any(), gomock.Any()).Return("ok", nil)
	gh.EXPECT().CreateComment(gomock.Any(), "acme", "api", 7, gomock.Any()).Return(nil)

	store := &memStore{}
	job := newJob(t, cfg, gen, &stubFactory{client: gh}, store)

	event := &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: 7, Source: core.SourceAction}
	outcome, err := job.Run(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, core.StateDone, outcome.State)
	assert.Equal(t, "feedface", event.HeadSHA)
	assert.Equal(t, "alice", event.Author, "author lookup feeds the credential chain")
	require.Len(t, store.records, 1)
	assert.Equal(t, "feedface", store.records[0].HeadSHA)
}

func TestReviewJob_ClientFactoryFailure(t *testing.T) {
	cfg := pipelineConfig()
	store := &memStore{}
	ctrl := gomock.NewController(t)

	job := newJob(t, cfg, mocks.NewMockGenerator(ctrl), &stubFactory{err: errors.New("no credentials")}, store)

	event := &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: 1}
	outcome, err := job.Run(context.Background(), event)

	require.Error(t, err)
	assert.Equal(t, core.StateFailed, outcome.State)
	require.Len(t, store.records, 1)
	assert.Equal(t, string(core.StateFailed), store.records[0].State)
}

func TestReviewJob_NoReviewableFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := pipelineConfig()

	gh := mocks.NewMockClient(ctrl)
	gh.EXPECT().GetChangedFiles(gomock.Any(), "acme", "api", 3).Return([]github.ChangedFile{
		{Filename: "renamed.py", Patch: ""},
	}, nil)

	store := &memStore{}
	job := newJob(t, cfg, mocks.NewMockGenerator(ctrl), &stubFactory{client: gh}, store)

	event := &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: 3, Author: "bob", HeadSHA: "c0ffee"}
	outcome, err := job.Run(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, core.StateDone, outcome.State)
	assert.Empty(t, outcome.Results)
}

func TestReviewJob_DeadlineMidDispatchEndsFailedButPublishesCompleted(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := pipelineConfig()
	cfg.Server.EventDeadline = 150 * time.Millisecond

	gh := mocks.NewMockClient(ctrl)
	gh.EXPECT().GetChangedFiles(gomock.Any(), "acme", "api", 11).Return([]github.ChangedFile{
		{Filename: "fast.py", Patch: "+quick"},
		{Filename: "slow.py", Patch: "+stuck"},
	}, nil)

	gen := mocks.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ core.Secret, _ string, _ float64, prompt string) (string, error) {
			if strings.Contains(prompt, "+stuck") {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "quick review", nil
		}).Times(2)

	// The completed review still reaches the pull request.
	gh.EXPECT().CreateComment(gomock.Any(), "acme", "api", 11, gomock.Any()).Return(nil).Times(1)

	store := &memStore{}
	job := newJob(t, cfg, gen, &stubFactory{client: gh}, store)

	event := &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: 11, Author: "alice", HeadSHA: "cafe"}
	outcome, err := job.Run(context.Background(), event)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.StateFailed, outcome.State, "a deadline mid-dispatch is a partial completion, not success")
	assert.Contains(t, err.Error(), "1 of 2 files finished")
	assert.Equal(t, []string{"fast.py"}, outcome.Publish.Published)
	assert.Equal(t, 1, outcome.FailedFileCount())

	require.Len(t, store.records, 1)
	assert.Equal(t, string(core.StateFailed), store.records[0].State)
	assert.Equal(t, 1, store.records[0].FilesFailed)
}

func TestReviewJob_PartialBackendFailureStillPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := pipelineConfig()

	gh := mocks.NewMockClient(ctrl)
	gh.EXPECT().GetChangedFiles(gomock.Any(), "acme", "api", 9).Return([]github.ChangedFile{
		{Filename: "good.py", Patch: "+ok"},
		{Filename: "bad.py", Patch: "+boom"},
	}, nil)

	gen := mocks.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ core.Secret, _ string, _ float64, prompt string) (string, error) {
			if strings.Contains(prompt, "+boom") {
				return "", &core.BackendError{StatusCode: 400, Message: "rejected"}
			}
			return "fine", nil
		}).Times(2)

	gh.EXPECT().CreateComment(gomock.Any(), "acme", "api", 9, gomock.Any()).Return(nil).Times(1)

	store := &memStore{}
	job := newJob(t, cfg, gen, &stubFactory{client: gh}, store)

	event := &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: 9, Author: "alice", HeadSHA: "d00d"}
	outcome, err := job.Run(context.Background(), event)
	require.NoError(t, err, "per-file failures do not fail the event")

	assert.Equal(t, core.StateDone, outcome.State)
	assert.Equal(t, 1, outcome.FailedFileCount())
	assert.Equal(t, []string{"good.py"}, outcome.Publish.Published)
	require.Len(t, store.records, 1)
	assert.Equal(t, 1, store.records[0].FilesFailed)
}
