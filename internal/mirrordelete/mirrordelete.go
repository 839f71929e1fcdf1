// Package mirrordelete implements the receiver-side mirror deletion
// of spec §4.10: after a session completes, anything under the
// destination that is not in the sender's expected-set is removed.
// Grounded on teacher's deleteFiles (internal/receiver/do.go), which
// walks the destination and removes entries absent from the received
// file list; generalized here from "top-level dir only" to the full
// tree and expected-set model of spec §3, with windows case-folding
// and read-only-attribute handling teacher's single-platform rsyncd
// never needed.
package mirrordelete

import (
	"os"
	"runtime"
	"strings"

	"github.com/blit-sync/blit/internal/fsys"
)

// Delete removes every destination entry whose relpath is not a
// member of expected, children before parents so directories are
// empty by the time their own removal is attempted. On windows,
// comparison against expected is case-folded and the read-only
// attribute is cleared before each unlink attempt, with one retry on
// a permission error (spec §4.10).
func Delete(local *fsys.FS, expected map[string]struct{}) ([]string, error) {
	caseFold := runtime.GOOS == "windows"

	withDirs := withAncestorDirs(expected)

	folded := withDirs
	if caseFold {
		folded = make(map[string]struct{}, len(withDirs))
		for k := range withDirs {
			folded[strings.ToLower(k)] = struct{}{}
		}
	}

	var all []string
	err := local.Walk(true, nil, func(e fsys.Entry) error {
		all = append(all, e.RelPath)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// Walk visits a directory before its descendants; reversing gives
	// every descendant before its ancestor directories, which is what
	// bottom-up removal needs.
	reverse(all)

	var deleted []string
	for _, relpath := range all {
		key := relpath
		if caseFold {
			key = strings.ToLower(relpath)
		}
		if _, ok := folded[key]; ok {
			continue
		}
		if err := removeWithRetry(local, relpath); err != nil {
			return deleted, err
		}
		deleted = append(deleted, relpath)
	}
	return deleted, nil
}

func removeWithRetry(local *fsys.FS, relpath string) error {
	local.ClearReadOnly(relpath)
	err := local.Remove(relpath)
	if err == nil || !os.IsPermission(err) {
		return err
	}
	local.ClearReadOnly(relpath)
	return local.Remove(relpath)
}

// withAncestorDirs returns expected plus every ancestor directory of
// every entry in it. An ancestor directory holding a kept file (e.g.
// sub/ holding sub/b.txt) is never itself in the sender's manifest
// when empty-dirs is off, but it must not be mirror-deleted out from
// under the file it still contains.
func withAncestorDirs(expected map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(expected))
	for relpath := range expected {
		out[relpath] = struct{}{}
		for {
			slash := strings.LastIndexByte(relpath, '/')
			if slash < 0 {
				break
			}
			relpath = relpath[:slash]
			if _, ok := out[relpath]; ok {
				break
			}
			out[relpath] = struct{}{}
		}
	}
	return out
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
