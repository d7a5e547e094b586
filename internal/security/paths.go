// Package security guards the filesystem boundaries of the pipeline: source
// annotation paths that must stay inside their collection root, output
// basenames derived from untrusted file names, and image paths accepted by
// the inference API.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeJoin joins rel onto root and rejects results that escape root. The
// check is lexical, so it also works for in-memory filesystems.
func SafeJoin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path %q not allowed under %s", rel, root)
	}
	joined := filepath.Join(root, rel)
	r, err := filepath.Rel(filepath.Clean(root), joined)
	if err != nil || escapes(r) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", rel, root)
	}
	return joined, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir,
// following symlinks on both sides. A path that does not exist yet is
// resolved through its nearest existing parent.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafe, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	canonicalSafe, err := filepath.EvalSymlinks(absSafe)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafe, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if escapes(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in the longest existing prefix of p.
func canonicalize(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rest)
		}
		if dir == filepath.Dir(dir) {
			return p
		}
	}
}

// ValidatePathWithinAllowedDirs accepts filePath if it lies inside any of
// allowedDirs.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// maxBasenameLen keeps flattened basenames well under common filesystem
// limits once the label extension is appended.
const maxBasenameLen = 200

// SanitizeFilename maps an arbitrary relative path to a flat file name for
// the unified store. Path separators become underscores so
// "batch_1/000003.jpg" turns into "batch_1_000003.jpg"; any other character
// outside [A-Za-z0-9._-] becomes an underscore, runs of underscores collapse,
// and the extension is preserved.
func SanitizeFilename(rel string) string {
	rel = filepath.ToSlash(filepath.Clean(rel))
	ext := strings.ToLower(filepath.Ext(rel))
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range stem {
		if b.Len() >= maxBasenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "unknown"
	}
	return out + ext
}
