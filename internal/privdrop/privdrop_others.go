//go:build !linux || nonamespacing

package privdrop

import "github.com/blit-sync/blit/internal/blitlog"

// Drop is a no-op on platforms without POSIX uid/gid semantics (or
// when namespacing is explicitly disabled via the nonamespacing build
// tag, matching teacher's own escape hatch).
func Drop(logger *blitlog.Logger) error {
	return nil
}
