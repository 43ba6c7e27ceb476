package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

func TestBuildReviewPrompt_DefaultTemplate(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	file := core.ChangedFile{
		Path:     "pkg/handler.go",
		Language: "Go",
		Diff:     "+func Handle() {}",
	}

	prompt, err := pm.BuildReviewPrompt(core.EffectiveConfig{}, file, false)
	require.NoError(t, err)
	assert.Contains(t, prompt, "written in Go")
	assert.Contains(t, prompt, "+func Handle() {}")
	assert.Contains(t, prompt, "diff from GitHub")
	assert.NotContains(t, prompt, "security review", "security block must be absent when the toggle is off")
}

func TestBuildReviewPrompt_ProfileTemplateOverrides(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	cfg := core.EffectiveConfig{
		PromptTemplate: "Review this {{.Language}} change briefly:\n{{.Diff}}",
	}
	file := core.ChangedFile{Path: "a.py", Language: "Python", Diff: "+print(1)"}

	prompt, err := pm.BuildReviewPrompt(cfg, file, false)
	require.NoError(t, err)
	assert.Equal(t, "Review this Python change briefly:\n+print(1)", prompt)
}

func TestBuildReviewPrompt_SecurityBlockAppended(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	file := core.ChangedFile{Path: "a.py", Language: "Python", Diff: "+x"}
	prompt, err := pm.BuildReviewPrompt(core.EffectiveConfig{}, file, true)
	require.NoError(t, err)
	assert.Contains(t, prompt, "security review")

	// The block is appended after the review body, same dispatch path.
	base, err := pm.BuildReviewPrompt(core.EffectiveConfig{}, file, false)
	require.NoError(t, err)
	assert.Contains(t, prompt, base)
	assert.Greater(t, len(prompt), len(base))
}

func TestBuildReviewPrompt_UnknownLanguageUsesPlainText(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	file := core.ChangedFile{Path: "data.bin", Diff: "+blob"}
	prompt, err := pm.BuildReviewPrompt(core.EffectiveConfig{}, file, false)
	require.NoError(t, err)
	assert.Contains(t, prompt, "written in Plain text")
}

func TestBuildReviewPrompt_MalformedProfileTemplate(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	cfg := core.EffectiveConfig{PromptTemplate: "{{.Diff"}
	_, err = pm.BuildReviewPrompt(cfg, core.ChangedFile{Path: "a.go"}, false)
	assert.Error(t, err)
}
