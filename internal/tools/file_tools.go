package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileTools provides workspace-confined file operations.
type FileTools struct {
	workspace string
}

// NewFileTools creates a FileTools rooted at workspace. An empty
// workspace disables file tools entirely.
func NewFileTools(workspace string) *FileTools {
	return &FileTools{workspace: workspace}
}

// Enabled reports whether file tools are available.
func (ft *FileTools) Enabled() bool {
	return ft.workspace != ""
}

// Workspace returns the configured workspace root.
func (ft *FileTools) Workspace() string {
	return ft.workspace
}

// Resolve converts a tool-supplied path to an absolute path inside the
// workspace. Escapes (.. traversal, absolute paths outside the root)
// are an error.
func (ft *FileTools) Resolve(path string) (string, error) {
	if ft.workspace == "" {
		return "", fmt.Errorf("workspace not configured")
	}

	root, err := filepath.Abs(ft.workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return abs, nil
}

// readCap bounds a single read_file payload before the orchestration
// loop's own truncation even sees it.
const readCap = 50 * 1024

// Read returns file contents, optionally windowed by 1-indexed line
// offset and line count limit.
func (ft *FileTools) Read(ctx context.Context, path string, offset, limit int) (string, error) {
	abs, err := ft.Resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if offset > 0 {
			start = offset - 1
		}
		if start >= len(lines) {
			return "", fmt.Errorf("offset %d exceeds file length (%d lines)", offset, len(lines))
		}
		end := len(lines)
		if limit > 0 && start+limit < end {
			end = start + limit
		}
		content = strings.Join(lines[start:end], "\n")
		content = fmt.Sprintf("[lines %d-%d of %d]\n%s", start+1, end, len(lines), content)
	}

	if len(content) > readCap {
		content = content[:readCap] + "\n\n[... truncated, use offset/limit for more ...]"
	}
	return content, nil
}

// Write writes content to a file, creating parent directories. With
// backup set, an existing file is first copied to path+".bak".
func (ft *FileTools) Write(ctx context.Context, path, content string, backup bool) error {
	abs, err := ft.Resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if backup {
		if prev, err := os.ReadFile(abs); err == nil {
			if err := os.WriteFile(abs+".bak", prev, 0o644); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
		}
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Edit replaces oldText with newText in a file. Unless replaceAll is
// set, oldText must occur exactly once.
func (ft *FileTools) Edit(ctx context.Context, path, oldText, newText string, replaceAll bool) (int, error) {
	abs, err := ft.Resolve(path)
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("file not found: %s", path)
		}
		return 0, fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	count := strings.Count(content, oldText)
	if count == 0 {
		preview := oldText
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		return 0, fmt.Errorf("old text not found in file: %q", preview)
	}
	if count > 1 && !replaceAll {
		return 0, fmt.Errorf("old text appears %d times; set replace_all or make it unique", count)
	}

	replaced := count
	if !replaceAll {
		replaced = 1
		content = strings.Replace(content, oldText, newText, 1)
	} else {
		content = strings.ReplaceAll(content, oldText, newText)
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	return replaced, nil
}

// List returns directory entries, optionally filtered by a glob
// pattern on the entry name. Directories are suffixed with /.
func (ft *FileTools) List(ctx context.Context, dir, pattern string) ([]string, error) {
	abs, err := ft.Resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dir)
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var result []string
	for _, e := range entries {
		name := e.Name()
		if pattern != "" {
			ok, err := filepath.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		if e.IsDir() {
			name += "/"
		} else if info, err := e.Info(); err == nil {
			name = fmt.Sprintf("%s (%d bytes)", name, info.Size())
		}
		result = append(result, name)
	}
	return result, nil
}

// Glob walks the workspace under dir and returns relative paths whose
// base name matches pattern, capped at maxResults.
func (ft *FileTools) Glob(ctx context.Context, pattern, dir string, maxResults int) ([]string, error) {
	abs, err := ft.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 100
	}

	var matches []string
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		ok, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, matchErr)
		}
		if ok {
			rel, _ := filepath.Rel(abs, p)
			matches = append(matches, rel)
			if len(matches) >= maxResults {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Grep searches file contents under dir for a substring, returning
// "path:line: text" matches, capped at maxResults.
func (ft *FileTools) Grep(ctx context.Context, pattern, dir string, caseInsensitive bool, maxResults int) ([]string, error) {
	abs, err := ft.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 50
	}

	needle := pattern
	if caseInsensitive {
		needle = strings.ToLower(needle)
	}

	var matches []string
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil || !isProbablyText(data) {
			return nil
		}

		rel, _ := filepath.Rel(abs, p)
		for i, line := range strings.Split(string(data), "\n") {
			haystack := line
			if caseInsensitive {
				haystack = strings.ToLower(haystack)
			}
			if strings.Contains(haystack, needle) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxResults {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// isProbablyText rejects binary files by scanning the first KB for NUL
// bytes.
func isProbablyText(data []byte) bool {
	n := len(data)
	if n > 1024 {
		n = 1024
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
