// Package ignore decides which repository paths the indexer walks. It
// combines a built-in skip list for common build/VCS/cache directories
// with real gitignore pattern matching loaded from the user's global
// gitignore and the repository's own .gitignore files.
package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultSkipNames are directory/file names skipped unconditionally,
// regardless of gitignore content.
var DefaultSkipNames = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"bower_components",
	"dist",
	"build",
	"out",
	"target",
	"bin",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".tox",
	".cache",
	".idea",
	".vscode",
	".vs",
	".DS_Store",
	"Thumbs.db",
	".codesearch",
}

// AllowedDotfiles are hidden files included even though they start with
// a dot, since they carry information the indexer cares about.
var AllowedDotfiles = []string{
	".gitignore",
	".dockerignore",
	".editorconfig",
}

// Filter decides whether a path should be walked or skipped.
type Filter struct {
	skipNames     map[string]bool
	allowDotfiles map[string]bool
	includeHidden bool
	gi            *gitignore.GitIgnore
}

// Options configures a new Filter.
type Options struct {
	// ExtraSkipNames are additional bare names to skip, appended to
	// DefaultSkipNames.
	ExtraSkipNames []string
	// IncludeHidden disables the default hidden-file skip (still subject
	// to DefaultSkipNames and gitignore patterns).
	IncludeHidden bool
}

// New builds a Filter for repoPath, loading the user's global
// ~/.gitignore and the repository's own .gitignore, if present.
func New(repoPath string, opts Options) (*Filter, error) {
	f := &Filter{
		skipNames:     toSet(DefaultSkipNames),
		allowDotfiles: toSet(AllowedDotfiles),
		includeHidden: opts.IncludeHidden,
	}
	for _, n := range opts.ExtraSkipNames {
		f.skipNames[n] = true
	}

	var lines []string
	if home, err := os.UserHomeDir(); err == nil {
		lines = append(lines, readPatternLines(filepath.Join(home, ".gitignore"))...)
	}
	lines = append(lines, readPatternLines(filepath.Join(repoPath, ".gitignore"))...)

	if len(lines) > 0 {
		f.gi = gitignore.CompileIgnoreLines(lines...)
	}

	return f, nil
}

// readPatternLines reads raw, unfiltered lines from a gitignore file.
// CompileIgnoreLines itself understands comments and blank lines, so no
// preprocessing happens here beyond splitting on newlines.
func readPatternLines(path string) []string {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return strings.Split(string(content), "\n")
}

// ShouldSkipName reports whether a bare file/directory name should never
// be descended into, independent of its relative path.
func (f *Filter) ShouldSkipName(name string) bool {
	if f.skipNames[name] {
		return true
	}
	if len(name) > 0 && name[0] == '.' && !f.includeHidden {
		if f.allowDotfiles[name] {
			return false
		}
		return true
	}
	return false
}

// ShouldSkipPath reports whether relPath (slash-separated, relative to
// the repository root) is excluded by the compiled gitignore patterns.
// isDir controls whether sabhiram/go-gitignore treats the path as a
// directory candidate.
func (f *Filter) ShouldSkipPath(relPath string, isDir bool) bool {
	if f.gi == nil {
		return false
	}
	path := relPath
	if isDir && !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return f.gi.MatchesPath(path)
}

// Skip combines ShouldSkipName (against the final path element) and
// ShouldSkipPath (against the full relative path) into the single check
// a directory walker needs per entry.
func (f *Filter) Skip(relPath string, isDir bool) bool {
	name := filepath.Base(relPath)
	if f.ShouldSkipName(name) {
		return true
	}
	return f.ShouldSkipPath(filepath.ToSlash(relPath), isDir)
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
