package search

import (
	"path"
	"strings"
)

// languages maps file extensions to display names for syntax highlighting.
var languages = map[string]string{
	".py":     "python",
	".js":     "javascript",
	".ts":     "typescript",
	".jsx":    "jsx",
	".tsx":    "tsx",
	".java":   "java",
	".go":     "go",
	".rb":     "ruby",
	".rs":     "rust",
	".cpp":    "cpp",
	".c":      "c",
	".h":      "c",
	".hpp":    "cpp",
	".cs":     "csharp",
	".php":    "php",
	".swift":  "swift",
	".kt":     "kotlin",
	".scala":  "scala",
	".sh":     "bash",
	".bash":   "bash",
	".zsh":    "bash",
	".yml":    "yaml",
	".yaml":   "yaml",
	".toml":   "toml",
	".json":   "json",
	".md":     "markdown",
	".sql":    "sql",
	".html":   "html",
	".css":    "css",
	".scss":   "scss",
	".vue":    "vue",
	".svelte": "svelte",
}

// languageForFile maps a file path to a language name, defaulting to "text".
func languageForFile(file string) string {
	ext := strings.ToLower(path.Ext(file))
	if lang, ok := languages[ext]; ok {
		return lang
	}
	if strings.EqualFold(path.Base(file), "dockerfile") {
		return "dockerfile"
	}
	if strings.EqualFold(path.Base(file), "makefile") {
		return "makefile"
	}
	return "text"
}
