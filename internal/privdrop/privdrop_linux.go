//go:build linux && !nonamespacing

// Package privdrop drops root privileges after blitd binds its
// listening socket (spec §6, daemon subcommand; SPEC_FULL.md
// "supplemented features": bind first, then drop, then verify the
// drop cannot be undone). Grounded on teacher's dropPrivileges
// (internal/maincmd/privdrop.go).
package privdrop

import (
	"fmt"
	"syscall"

	"github.com/blit-sync/blit/internal/blitlog"
)

// Drop drops from uid/gid 0 to the unprivileged nobody uid/gid
// (65534), a no-op when not running as root. It returns an error if,
// after dropping, root can somehow be re-gained.
func Drop(logger *blitlog.Logger) error {
	if syscall.Getuid() != 0 {
		return nil
	}

	if logger != nil {
		logger.Printf("running as root (uid 0), dropping privileges to nobody (uid/gid 65534)")
	}
	if err := syscall.Setgid(65534); err != nil {
		return fmt.Errorf("setgid(65534): %v", err)
	}
	if err := syscall.Setuid(65534); err != nil {
		return fmt.Errorf("setuid(65534): %v", err)
	}

	// Defense in depth: exit if we can re-gain uid/gid 0 permission.
	if err := syscall.Setgid(0); err == nil {
		return fmt.Errorf("unexpectedly able to re-gain gid 0 permission")
	}
	if err := syscall.Setuid(0); err == nil {
		return fmt.Errorf("unexpectedly able to re-gain uid 0 permission")
	}
	return nil
}
