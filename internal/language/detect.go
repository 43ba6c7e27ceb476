// Package language maps changed-file paths to the language names used for
// profile lookup.
package language

import (
	"path/filepath"
	"strings"
)

// byExtension covers the languages the review profiles distinguish between.
// Anything absent resolves to the empty string and the global defaults.
var byExtension = map[string]string{
	".py":    "Python",
	".go":    "Go",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".rb":    "Ruby",
	".rs":    "Rust",
	".c":     "C",
	".h":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sh":    "Shell",
	".sql":   "SQL",
	".html":  "HTML",
	".css":   "CSS",
	".yml":   "YAML",
	".yaml":  "YAML",
	".md":    "Markdown",
	".tf":    "Terraform",
}

// Salesforce files carry their own extensions and get dedicated profiles.
var salesforceByExtension = map[string]string{
	".cls":       "Salesforce Apex",
	".trigger":   "Salesforce Apex Trigger",
	".page":      "Salesforce Visualforce",
	".component": "Salesforce Lightning",
	".cmp":       "Salesforce Lightning",
}

// Detect returns the language name for a file path, or the empty string when
// the extension is not recognized.
func Detect(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if lang, ok := salesforceByExtension[ext]; ok {
		return lang
	}
	return byExtension[ext]
}
