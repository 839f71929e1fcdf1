//go:build !windows

package fsys

// applyReadOnly is a no-op outside windows: POSIX permission bits
// (already applied by SetAttr's Chmod) are the unix equivalent (spec
// §4.6 only calls out the read-only flag for windows receivers).
func applyReadOnly(native string, readOnly bool) error {
	return nil
}
