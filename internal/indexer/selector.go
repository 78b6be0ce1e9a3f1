// Package indexer provides source tree walking, line chunking, and index building.
package indexer

import (
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are directory names excluded at any depth: version control, build
// artifacts, caches, and dependency directories.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, "env": true,
	"dist": true, "build": true, ".next": true, ".nuxt": true,
	"coverage": true, ".pytest_cache": true, ".mypy_cache": true, ".eggs": true,
}

// codeExtensions is the allow-set of indexable file extensions.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".go": true, ".rb": true, ".rs": true,
	".cpp": true, ".c": true, ".h": true, ".hpp": true, ".cs": true,
	".php": true, ".swift": true, ".kt": true, ".scala": true,
	".sh": true, ".bash": true, ".zsh": true,
	".yml": true, ".yaml": true, ".toml": true, ".json": true,
	".md": true, ".txt": true, ".sql": true, ".html": true, ".css": true,
	".scss": true, ".vue": true, ".svelte": true, ".graphql": true, ".proto": true,
}

// buildFiles are extensionless manifest/build files accepted by case-insensitive name.
var buildFiles = map[string]bool{
	"dockerfile": true, "makefile": true, "rakefile": true,
	"procfile": true, "gemfile": true, "pipfile": true, "requirements.txt": true,
}

// Selector walks a source tree and yields the files eligible for indexing.
type Selector struct {
	maxFileBytes int64
}

// NewSelector creates a selector that skips files larger than maxFileKB.
func NewSelector(maxFileKB int) *Selector {
	return &Selector{maxFileBytes: int64(maxFileKB) * 1024}
}

// Walk calls fn for each indexable file under root with its slash-separated
// relative path and text content. Files rejected by the selection rules or
// failing to stat/read are counted as skipped; individual file errors never
// abort the walk. Invalid UTF-8 in file content is substituted, not fatal.
func (s *Selector) Walk(root string, fn func(relPath, text string) error) (skipped int, err error) {
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			skipped++
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			skipped++
			return nil
		}
		if info.Size() > s.maxFileBytes {
			skipped++
			return nil
		}

		name := strings.ToLower(d.Name())
		ext := strings.ToLower(filepath.Ext(name))
		if !codeExtensions[ext] && !buildFiles[name] {
			skipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			skipped++
			return nil
		}
		text := strings.ToValidUTF8(string(content), "�")

		rel, err := filepath.Rel(root, path)
		if err != nil {
			skipped++
			return nil
		}
		return fn(filepath.ToSlash(rel), text)
	})
	return skipped, walkErr
}
