package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

func tempOf(v float64) *float64 { return &v }

func testConfig() *config.Config {
	return &config.Config{
		OpenAI: config.OpenAIConfig{
			DefaultModel:       "gpt-4o-mini",
			DefaultTemperature: 0.7,
		},
		GitHub: config.GitHubConfig{DefaultAPIKey: "default-key"},
		UserKeys: map[string]config.KeyEntry{
			"alice": {APIKey: "alice-key"},
			"carol": {APIKey: ""},
		},
		RepoOwnerKeys: map[string]config.KeyEntry{
			"acme": {APIKey: "acme-key"},
		},
		Languages: map[string]config.LanguageProfile{
			"python": {Model: "gpt-4o", Temperature: tempOf(0.2), PromptTemplate: "python-specific: {{.Diff}}"},
			"go":     {PromptTemplate: "go-specific: {{.Diff}}"},
		},
		Features: config.FeatureConfig{UseCustomPrompts: true},
	}
}

func TestResolve_CredentialPrecedence(t *testing.T) {
	r := New(testConfig())

	tests := []struct {
		name    string
		owner   string
		author  string
		wantKey string
	}{
		{"user layer wins over owner and default", "acme", "alice", "alice-key"},
		{"owner layer wins over default", "acme", "bob", "acme-key"},
		{"default terminates the chain", "unknown", "bob", "default-key"},
		{"empty user entry falls through", "acme", "carol", "acme-key"},
		{"lookup is case-insensitive", "ACME", "ALICE", "alice-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.owner, "repo", tt.author, "Python")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, got.Credential.Value())
		})
	}
}

func TestResolve_ModelAxisIndependentOfCredentialAxis(t *testing.T) {
	r := New(testConfig())

	// alice's credential with the Python profile's prompt: the two axes are
	// resolved independently.
	got, err := r.Resolve("acme", "repo", "alice", "Python")
	require.NoError(t, err)
	assert.Equal(t, "alice-key", got.Credential.Value())
	assert.Equal(t, "gpt-4o", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.Equal(t, "python-specific: {{.Diff}}", got.PromptTemplate)
}

func TestResolve_UnknownLanguageFallsBackToGlobalDefaults(t *testing.T) {
	r := New(testConfig())

	got, err := r.Resolve("acme", "repo", "alice", "Brainfuck")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.Empty(t, got.PromptTemplate, "unknown language gets no prompt customization")
}

func TestResolve_ProfilePartialOverride(t *testing.T) {
	r := New(testConfig())

	// The go profile only sets a template; model and temperature come from
	// the global defaults.
	got, err := r.Resolve("acme", "repo", "alice", "Go")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.Equal(t, "go-specific: {{.Diff}}", got.PromptTemplate)
}

func TestResolve_ExplicitZeroTemperatureHonored(t *testing.T) {
	cfg := testConfig()
	cfg.Languages["python"] = config.LanguageProfile{Model: "gpt-4o", Temperature: tempOf(0)}
	r := New(cfg)

	got, err := r.Resolve("acme", "repo", "alice", "Python")
	require.NoError(t, err)
	assert.Zero(t, got.Temperature, "an explicit 0 is deterministic review, not an unset value")

	// Leaving the temperature out still falls back to the global default.
	cfg.Languages["python"] = config.LanguageProfile{Model: "gpt-4o"}
	got, err = New(cfg).Resolve("acme", "repo", "alice", "Python")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestResolve_CustomPromptsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Features.UseCustomPrompts = false
	r := New(cfg)

	got, err := r.Resolve("acme", "repo", "alice", "Python")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Empty(t, got.PromptTemplate)
}

func TestResolve_MissingDefaultCredential(t *testing.T) {
	cfg := testConfig()
	cfg.GitHub.DefaultAPIKey = ""
	cfg.UserKeys = nil
	cfg.RepoOwnerKeys = nil

	// Startup validation refuses this configuration.
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNoDefaultCredential)

	var cfgErr *core.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	// And even if a snapshot slipped through, Resolve surfaces the same error
	// instead of panicking.
	_, err = New(cfg).Resolve("o", "r", "a", "")
	assert.ErrorIs(t, err, core.ErrNoDefaultCredential)
}
