package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pathPrefixes are output-directory prefixes models tend to prepend to file
// names; the first match is stripped.
var pathPrefixes = []string{"output/frontend/", "output/backend/", "output/", "frontend/", "backend/"}

func normalizePath(path string) string {
	p := strings.ReplaceAll(strings.TrimSpace(path), "`", "")
	for _, prefix := range pathPrefixes {
		if strings.HasPrefix(p, prefix) {
			return p[len(prefix):]
		}
	}
	return p
}

// ParseFiles extracts files from a text response. A file starts with a
// "FILE: name" line, a fence naming the file ("```python:main.py"), or a
// "# name" / "// name" comment outside a fence; its content is the following
// fenced block. Files without content are dropped.
func ParseFiles(response string) map[string]string {
	files := make(map[string]string)
	var (
		current string
		inBlock bool
		code    []string
	)
	flush := func() {
		if current != "" && len(code) > 0 {
			files[current] = strings.Join(code, "\n")
			code = nil
		}
	}

	for _, line := range strings.Split(response, "\n") {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(line, "FILE:") {
			flush()
			current = normalizePath(strings.TrimPrefix(line, "FILE:"))
			inBlock = false
			continue
		}

		if strings.HasPrefix(line, "```") {
			if inBlock {
				inBlock = false
				if current != "" && len(code) > 0 {
					flush()
					current = ""
				}
			} else {
				inBlock = true
				if parts := strings.Split(line, ":"); len(parts) > 1 {
					current = normalizePath(parts[1])
				}
			}
			continue
		}

		if !inBlock && (strings.HasPrefix(stripped, "# ") || strings.HasPrefix(stripped, "// ")) {
			name := strings.TrimSpace(stripped[2:])
			if strings.Contains(name, ".") && !strings.Contains(name, " ") {
				flush()
				current = normalizePath(name)
				continue
			}
		}

		if inBlock && current != "" {
			code = append(code, line)
		}
	}
	flush()
	return files
}

// writeFiles writes parsed files under dir. Names that would escape dir are
// rejected.
func writeFiles(dir string, files map[string]string) error {
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
			return fmt.Errorf("refusing to write %q outside %s", name, dir)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
