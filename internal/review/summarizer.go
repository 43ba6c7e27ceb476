package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

const (
	fileSummaryInstruction = "Summarize this changed file from a pull request in the most condensed form " +
		"that still survives being combined with the other files' summaries into one overview. " +
		"This is a diff: treat '+' lines as additions and '-' lines as deletions."

	prSummaryInstruction = "Create a comprehensive summary of the pull request from the per-file summaries " +
		"below. Summarize the overall impact, highlighting key additions, deletions and modifications. " +
		"Focus on overarching themes and their implications. Aim for succinctness and clarity."

	fileSummarySeparator = "\nNext PR file\n"
)

// Summarizer condenses a pull request's diffs into one overview comment. It
// summarizes each file first, then combines those into a single PR-level
// summary; the two-stage pass keeps large PRs within the backend's context.
type Summarizer struct {
	gen    Generator
	logger *slog.Logger
}

// NewSummarizer creates a Summarizer over the same backend the dispatcher
// uses.
func NewSummarizer(gen Generator, logger *slog.Logger) *Summarizer {
	return &Summarizer{gen: gen, logger: logger}
}

// Summarize produces the PR-level summary text for the event's changed files.
// Files are processed sequentially; any backend failure aborts the summary,
// since a partial overview would misrepresent the pull request.
func (s *Summarizer) Summarize(ctx context.Context, event *core.ReviewEvent, configFor ConfigFunc) (string, error) {
	if len(event.Files) == 0 {
		return "", fmt.Errorf("pull request %s#%d has no summarizable files", event.RepoFullName(), event.PRNumber)
	}

	fileSummaries := make([]string, 0, len(event.Files))
	var cfg core.EffectiveConfig
	for _, file := range event.Files {
		var err error
		cfg, err = configFor(file)
		if err != nil {
			return "", err
		}

		prompt := fileSummaryInstruction + "\n\n" + file.Diff
		summary, err := s.gen.Generate(ctx, cfg.Credential, cfg.Model, cfg.Temperature, prompt)
		if err != nil {
			s.logger.Warn("file summary failed", "file", file.Path, "model", cfg.Model, "error", err)
			return "", fmt.Errorf("failed to summarize %s: %w", file.Path, err)
		}

		language := file.Language
		if language == "" {
			language = "Plain text"
		}
		fileSummaries = append(fileSummaries,
			fmt.Sprintf("Filename: %s\nLanguage: %s\nSummary:\n%s", file.Path, language, summary))
	}

	combined := prSummaryInstruction + "\n\n" + strings.Join(fileSummaries, fileSummarySeparator)
	summary, err := s.gen.Generate(ctx, cfg.Credential, cfg.Model, cfg.Temperature, combined)
	if err != nil {
		return "", fmt.Errorf("failed to combine file summaries for %s#%d: %w", event.RepoFullName(), event.PRNumber, err)
	}
	return summary, nil
}

// FormatSummaryComment renders the summary as the comment body posted onto
// the pull request.
func FormatSummaryComment(event *core.ReviewEvent, summary string) string {
	return fmt.Sprintf("## Summary for #%d\n\n%s", event.PRNumber, summary)
}
