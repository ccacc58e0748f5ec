package verify

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

func always(fn func(req Request) Verdict) CheckFunc {
	return func(_ context.Context, req Request) (Verdict, bool) {
		return fn(req), true
	}
}

func checkFilesExist(req Request) Verdict {
	var missing []string
	for i, p := range req.paths() {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, req.Files[i])
		}
	}
	if len(missing) > 0 {
		return fail(FilesExist, "Missing files: "+strings.Join(missing, ", "), "")
	}
	return pass(FilesExist, "All files exist")
}

func checkFilesNotEmpty(req Request) Verdict {
	var empty []string
	for i, p := range req.paths() {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() && info.Size() == 0 {
			empty = append(empty, req.Files[i])
		}
	}
	if len(empty) > 0 {
		return fail(FilesNotEmpty, "Empty files: "+strings.Join(empty, ", "), "")
	}
	return pass(FilesNotEmpty, "All files have content")
}

// hiddenChar reports the offset of the first control character other than
// tab, newline and carriage return, or -1.
func hiddenChar(content []byte) int {
	for i, b := range content {
		if (b < 0x20 && b != '\t' && b != '\n' && b != '\r') || b == 0x7f {
			return i
		}
	}
	return -1
}

// hiddenEntry returns the first line of a plain-text listing that names a
// dotfile.
func hiddenEntry(content []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(name, ".") {
			return name
		}
	}
	return ""
}

func checkFilesNoHidden(req Request) Verdict {
	var flagged, details []string
	for i, p := range req.paths() {
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		name := req.Files[i]
		if off := hiddenChar(content); off >= 0 {
			flagged = append(flagged, name)
			details = append(details, fmt.Sprintf("%s: control character at byte %d", name, off))
			continue
		}
		if filepath.Ext(p) == ".txt" {
			if entry := hiddenEntry(content); entry != "" {
				flagged = append(flagged, name)
				details = append(details, fmt.Sprintf("%s: lists hidden entry %s", name, entry))
			}
		}
	}
	if len(flagged) > 0 {
		return fail(FilesNoHidden, "Files with hidden chars: "+strings.Join(flagged, ", "), strings.Join(details, "; "))
	}
	return pass(FilesNoHidden, "No hidden characters")
}

// ListingEntries returns the non-hidden entries of dir, excluding exclude,
// sorted by name.
func ListingEntries(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, ".") || n == exclude {
			continue
		}
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

func readListing(path, self string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(content), "\n") {
		n := strings.TrimSpace(line)
		if n == "" || n == self {
			continue
		}
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// diffNames returns names only in want and names only in got.
func diffNames(want, got []string) (missing, extra []string) {
	for _, n := range want {
		if !slices.Contains(got, n) {
			missing = append(missing, n)
		}
	}
	for _, n := range got {
		if !slices.Contains(want, n) {
			extra = append(extra, n)
		}
	}
	return missing, extra
}

func checkFilesMatchListing(req Request) Verdict {
	for i, p := range req.paths() {
		name := req.Files[i]
		self := filepath.Base(p)

		listed, err := readListing(p, self)
		if err != nil {
			return fail(FilesMatchListing, fmt.Sprintf("files_match_listing: %s missing", name), err.Error())
		}
		actual, err := ListingEntries(filepath.Dir(p), self)
		if err != nil {
			return fail(FilesMatchListing, fmt.Sprintf("files_match_listing: cannot read directory of %s", name), err.Error())
		}
		if !slices.Equal(listed, actual) {
			missing, extra := diffNames(actual, listed)
			detail := fmt.Sprintf("missing: %s; unexpected: %s", strings.Join(missing, ", "), strings.Join(extra, ", "))
			return fail(FilesMatchListing, fmt.Sprintf("files_match_listing: %s does not match directory", name), detail)
		}
	}
	return pass(FilesMatchListing, "Listing matches directory (self-excluded)")
}
