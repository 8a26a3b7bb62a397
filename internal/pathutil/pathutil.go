// Package pathutil resolves and relativises file system paths the way
// MSBuild-style tooling expects: both separator styles are accepted on every
// host, symlinks are resolved, and trailing separators are dropped.
package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Normalize returns path with both '/' and '\' replaced by the host separator.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	path = strings.ReplaceAll(path, `\`, string(os.PathSeparator))
	return strings.ReplaceAll(path, "/", string(os.PathSeparator))
}

// ToSlash replaces every separator, of either style, with '/'. Unlike
// filepath.ToSlash it also converts backslashes on Unix hosts.
func ToSlash(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// ToBackslash replaces every separator, of either style, with '\'.
func ToBackslash(path string) string {
	return strings.ReplaceAll(path, "/", `\`)
}

// ResolveFull joins components, normalises separators, makes the result
// absolute and resolves symlinks when the path exists. Returns "" when no
// non-empty component is given.
func ResolveFull(components ...string) string {
	var parts []string
	for _, c := range components {
		if c != "" {
			parts = append(parts, Normalize(c))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	path := parts[0]
	for _, p := range parts[1:] {
		if filepath.IsAbs(p) {
			path = p
			continue
		}
		path = filepath.Join(path, p)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	abs = evalExisting(abs)
	if len(abs) > 1 {
		abs = strings.TrimRight(abs, string(os.PathSeparator))
		if abs == "" || strings.HasSuffix(abs, ":") {
			abs += string(os.PathSeparator)
		}
	}
	return abs
}

// evalExisting resolves symlinks in the longest existing prefix of path so
// that missing files still canonicalise consistently with their siblings.
func evalExisting(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path
	}
	return filepath.Join(evalExisting(parent), filepath.Base(path))
}

// Rel makes path relative to basePath after resolving both. The result uses
// host separators.
func Rel(basePath, path string) (string, error) {
	if path == "" {
		return "", errors.New("pathutil: empty path")
	}
	if basePath == "" {
		basePath = "."
	}
	rel, err := filepath.Rel(ResolveFull(basePath), ResolveFull(path))
	if err != nil {
		return "", err
	}
	return Normalize(rel), nil
}

// ChangeExt replaces the extension of path with ext (which should include
// the leading dot).
func ChangeExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// NameWithoutExt returns the base name of path with its extension removed.
// Either separator style is honoured.
func NameWithoutExt(path string) string {
	base := filepath.Base(Normalize(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ext returns the lower-cased extension of path.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(Normalize(path)))
}

// IsFile reports whether path exists and is not a directory.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
