//go:build !linux

package restrict

import "log"

// MaybeFileSystem is a no-op outside Linux: Landlock is a Linux-only
// kernel feature, and blit runs unsandboxed on other platforms rather
// than fail to start (spec §6, "optional adapter capabilities").
func MaybeFileSystem(roDirs, rwDirs []string) error {
	log.Printf("restrict: landlock unavailable on this platform, running unsandboxed")
	return nil
}
