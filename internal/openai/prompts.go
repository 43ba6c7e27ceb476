package openai

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

//go:embed prompts/*.prompt
var promptFiles embed.FS

// PromptKey names one embedded prompt template.
type PromptKey string

const (
	CodeReviewPrompt PromptKey = "code_review"
	SecurityPrompt   PromptKey = "security"
)

// promptData is the substitution payload for review templates, both embedded
// and operator-supplied ones from language profiles.
type promptData struct {
	Language   string
	DiffNotice string
	Diff       string
}

const diffNotice = "This is a diff from GitHub with lines prefixed with + for additions and - for deletions."

// PromptManager loads the embedded prompt templates once at startup and
// renders review prompts, optionally through a language profile's custom
// template.
type PromptManager struct {
	prompts map[PromptKey]*template.Template
}

// NewPromptManager parses every embedded template. Filenames follow the
// key_variant.prompt convention; only the default variants ship embedded.
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{prompts: make(map[PromptKey]*template.Template)}

	files, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded prompts directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		fileName := file.Name()
		baseName := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		lastUnderscore := strings.LastIndex(baseName, "_")
		if lastUnderscore <= 0 || lastUnderscore == len(baseName)-1 {
			return nil, fmt.Errorf("invalid prompt filename format: %s (expected 'key_variant.prompt')", fileName)
		}
		key := PromptKey(baseName[:lastUnderscore])

		content, err := promptFiles.ReadFile("prompts/" + fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded prompt file %s: %w", fileName, err)
		}
		tmpl, err := template.New(baseName).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("could not parse template %s: %w", fileName, err)
		}
		pm.prompts[key] = tmpl
	}

	if _, ok := pm.prompts[CodeReviewPrompt]; !ok {
		return nil, fmt.Errorf("embedded prompts are missing the %s template", CodeReviewPrompt)
	}
	return pm, nil
}

// BuildReviewPrompt renders the prompt for one changed file. A non-empty
// PromptTemplate on the effective config replaces the embedded review
// template; the security instruction block is appended when security checks
// are enabled. The toggle shapes prompt construction, not a separate pipeline.
func (pm *PromptManager) BuildReviewPrompt(cfg core.EffectiveConfig, file core.ChangedFile, securityChecks bool) (string, error) {
	data := promptData{
		Language:   file.Language,
		DiffNotice: diffNotice,
		Diff:       file.Diff,
	}
	if data.Language == "" {
		data.Language = "Plain text"
	}

	var body string
	if cfg.PromptTemplate != "" {
		tmpl, err := template.New("profile").Parse(cfg.PromptTemplate)
		if err != nil {
			return "", fmt.Errorf("invalid prompt template for %s: %w", file.Path, err)
		}
		body, err = render(tmpl, data)
		if err != nil {
			return "", err
		}
	} else {
		var err error
		body, err = render(pm.prompts[CodeReviewPrompt], data)
		if err != nil {
			return "", err
		}
	}

	if securityChecks {
		security, err := render(pm.prompts[SecurityPrompt], data)
		if err != nil {
			return "", err
		}
		body = body + "\n\n" + security
	}
	return body, nil
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
