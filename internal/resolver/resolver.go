// Package resolver selects the effective review configuration for a request
// by merging the layered credential and language-profile precedence rules.
package resolver

import (
	"strings"

	"github.com/rjtruitt/CodeReviewBot/internal/config"
	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

// credentialLookup is one tier of the credential chain. More specific tiers
// run first; the first present value wins.
type credentialLookup func(owner, author string) (string, bool)

// Resolver produces EffectiveConfig values from an immutable configuration
// snapshot. It is a pure function over that snapshot: no side effects, safe
// for concurrent use.
type Resolver struct {
	cfg   *config.Config
	chain []credentialLookup
}

// New builds a Resolver over cfg. The credential precedence is
// user -> repository owner -> default; the default tier always matches
// because startup validation requires it.
func New(cfg *config.Config) *Resolver {
	r := &Resolver{cfg: cfg}
	r.chain = []credentialLookup{
		func(_, author string) (string, bool) {
			entry, ok := cfg.UserKeys[strings.ToLower(author)]
			return entry.APIKey, ok && entry.APIKey != ""
		},
		func(owner, _ string) (string, bool) {
			entry, ok := cfg.RepoOwnerKeys[strings.ToLower(owner)]
			return entry.APIKey, ok && entry.APIKey != ""
		},
		func(_, _ string) (string, bool) {
			return cfg.GitHub.DefaultAPIKey, cfg.GitHub.DefaultAPIKey != ""
		},
	}
	return r
}

// Resolve returns the effective configuration for one file of one request.
// The credential axis depends on author and owner; the model axis depends on
// language. They are deliberately independent: credentials are about who
// pays and authorizes, prompts are about how to review.
//
// The only possible failure is a missing default credential, which startup
// validation already rules out, so in steady state Resolve never fails.
func (r *Resolver) Resolve(owner, repo, author, language string) (core.EffectiveConfig, error) {
	credential, err := r.resolveCredential(owner, author)
	if err != nil {
		return core.EffectiveConfig{}, err
	}

	out := core.EffectiveConfig{
		Model:       r.cfg.OpenAI.DefaultModel,
		Temperature: r.cfg.OpenAI.DefaultTemperature,
		Credential:  core.Secret(credential),
	}

	if r.cfg.Features.UseCustomPrompts && language != "" {
		if profile, ok := r.cfg.Languages[strings.ToLower(language)]; ok {
			if profile.Model != "" {
				out.Model = profile.Model
			}
			if profile.Temperature != nil {
				out.Temperature = *profile.Temperature
			}
			out.PromptTemplate = profile.PromptTemplate
		}
	}
	return out, nil
}

func (r *Resolver) resolveCredential(owner, author string) (string, error) {
	for _, lookup := range r.chain {
		if key, ok := lookup(owner, author); ok {
			return key, nil
		}
	}
	return "", &core.ConfigError{Err: core.ErrNoDefaultCredential}
}
