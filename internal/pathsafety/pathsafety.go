// Package pathsafety validates and resolves the relative paths carried
// in manifests and frames (spec §4.3). Grounded on teacher's
// destination-rooted opens (internal/receiver's rt.DestRoot.Open,
// rt.Dest-prefixed filepath.Join) and its deleteFiles prefix-stripping
// walk (internal/receiver/do.go), generalized into a standalone check
// performed before any IO touches the path.
package pathsafety

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/blit-sync/blit/internal/bliterr"
)

// Clean validates a wire-format relative path (forward-slash, spec
// §3) and returns it unchanged if safe. It rejects:
//   - the empty string
//   - NUL bytes
//   - any "." or ".." path component
//   - absolute paths (leading "/") or a drive-letter prefix ("C:\")
func Clean(relpath string) (string, error) {
	if relpath == "" {
		return "", bliterr.PathViolation(relpath, "empty path")
	}
	if strings.IndexByte(relpath, 0) != -1 {
		return "", bliterr.PathViolation(relpath, "NUL byte in path")
	}
	if strings.HasPrefix(relpath, "/") {
		return "", bliterr.PathViolation(relpath, "absolute path")
	}
	if len(relpath) >= 2 && relpath[1] == ':' {
		return "", bliterr.PathViolation(relpath, "drive-letter prefix")
	}
	if strings.ContainsRune(relpath, '\\') {
		return "", bliterr.PathViolation(relpath, "backslash path separator")
	}
	for _, part := range strings.Split(relpath, "/") {
		switch part {
		case "":
			return "", bliterr.PathViolation(relpath, "empty path component")
		case ".", "..":
			return "", bliterr.PathViolation(relpath, "disallowed path component "+part)
		}
	}
	return relpath, nil
}

// Resolve validates relpath via Clean and joins it onto root (an
// absolute, already-canonical server root per spec §3), verifying the
// canonicalized result still begins with root. This is the fatal
// "root escape" check spec §3 requires of every incoming path.
func Resolve(root, relpath string) (string, error) {
	clean, err := Clean(relpath)
	if err != nil {
		return "", err
	}
	native := filepath.FromSlash(clean)
	joined := filepath.Join(root, native)
	canonicalRoot := filepath.Clean(root)
	canonicalJoined := filepath.Clean(joined)

	if !withinRoot(canonicalRoot, canonicalJoined) {
		return "", bliterr.PathViolation(relpath, "resolved path escapes root")
	}
	return canonicalJoined, nil
}

func withinRoot(root, candidate string) bool {
	if candidate == root {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(candidate, root+sep)
}

// ToWire converts a native (OS-separator) relative path, as produced
// by a filesystem walk, into the wire's forward-slash form (spec §3).
func ToWire(nativeRelPath string) string {
	return filepath.ToSlash(nativeRelPath)
}

// Dir returns the wire-form parent of a wire-form path, "." for a
// top-level entry.
func Dir(relpath string) string {
	d := path.Dir(relpath)
	if d == "" {
		return "."
	}
	return d
}
