package restrict

import (
	"fmt"
	"os"

	"github.com/blit-sync/blit/internal/blitconfig"
)

// ToModules locks the daemon process to its configured module roots
// (spec §6): read-only modules get RODirs, writable ones get RWDirs,
// alongside the DNS/user-lookup/ssh defaults MaybeFileSystem always
// includes. Generalized from teacher's restrictToModules
// (rsyncd/restrictmodules.go), which did the same thing for a single
// hardcoded module map.
func ToModules(modules []blitconfig.Module) error {
	roDirs := append([]string{}, defaultRoDirs...)
	var rwDirs []string
	for _, mod := range modules {
		if mod.Writable {
			if err := os.MkdirAll(mod.Path, 0755); err != nil {
				return fmt.Errorf("restrict: MkdirAll(module=%s): %v", mod.Name, err)
			}
			rwDirs = append(rwDirs, mod.Path)
		} else {
			roDirs = append(roDirs, mod.Path)
		}
	}
	return MaybeFileSystem(roDirs, rwDirs)
}
