// Package files expands a search hit's stored line range into the
// surrounding source, for callers that want to show a result with
// context rather than just the indexed chunk text.
package files

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Context is a slice of a file's lines padded around a search hit.
type Context struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// GetContext reads repoRoot/relPath and returns the lines from
// startLine-pad through endLine+pad (1-indexed, inclusive, clamped to the
// file's bounds). pad <= 0 returns exactly [startLine, endLine].
func GetContext(repoRoot, relPath string, startLine, endLine, pad int) (*Context, error) {
	if pad > 0 {
		startLine -= pad
		endLine += pad
	}
	if startLine < 1 {
		startLine = 1
	}

	absPath := filepath.Join(repoRoot, relPath)
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", relPath)
		}
		return nil, fmt.Errorf("accessing file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", relPath)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)

	// Increase buffer for large lines.
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	lastLine := 0
	for scanner.Scan() {
		lineNum++
		lastLine = lineNum
		if lineNum < startLine {
			continue
		}
		if endLine > 0 && lineNum > endLine {
			break
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if startLine > lastLine {
		return nil, fmt.Errorf("start_line %d is beyond end of file (%d lines)", startLine, lastLine)
	}
	actualEnd := endLine
	if actualEnd == 0 || actualEnd > lastLine {
		actualEnd = lastLine
	}

	return &Context{
		Path:      relPath,
		StartLine: startLine,
		EndLine:   actualEnd,
		Content:   strings.Join(lines, "\n"),
	}, nil
}
