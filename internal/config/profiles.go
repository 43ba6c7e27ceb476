package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrProfilesNotFound = errors.New("language profiles file not found")
	ErrProfilesParsing  = errors.New("language profiles parsing failed")
)

// LoadLanguageProfiles reads a standalone YAML file mapping language names to
// their review profiles. Keeping prompt templates in their own file lets
// operators edit them without touching credentials.
func LoadLanguageProfiles(path string) (map[string]LanguageProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfilesNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	profiles := map[string]LanguageProfile{}
	if err := yaml.Unmarshal(data, profiles); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfilesParsing, err)
	}
	return profiles, nil
}
