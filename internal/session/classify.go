package session

import (
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/protocol"
)

// classifyNeeds turns a Diff() result into a needPlan, deciding per
// file whether it travels bundled, per-file streamed, via the parallel
// raw path, or via delta (spec §4.5-§4.8's size thresholds, plus
// DeltaEnabled/rawEligible opt-in for the two large-file paths).
func classifyNeeds(needs []manifest.NeedEntry, local *fsys.FS, opts Options) needPlan {
	var plan needPlan
	for _, n := range needs {
		switch n.Kind {
		case protocol.KindDir:
			plan.Regular = append(plan.Regular, regularNeed{n.RelPath, bucketDir})
		case protocol.KindSymlink:
			plan.Regular = append(plan.Regular, regularNeed{n.RelPath, bucketSymlink})
		case protocol.KindFile:
			classifyFileNeed(&plan, n, local, opts)
		}
	}
	return plan
}

func classifyFileNeed(plan *needPlan, n manifest.NeedEntry, local *fsys.FS, opts Options) {
	switch {
	case int64(n.Size) < opts.BundleThreshold && !opts.NoTar:
		plan.Regular = append(plan.Regular, regularNeed{n.RelPath, bucketSmallFile})
	case int64(n.Size) < opts.LargeThreshold:
		plan.Regular = append(plan.Regular, regularNeed{n.RelPath, bucketMediumFile})
	default:
		exists, _ := local.Exists(n.RelPath)
		switch {
		case exists && opts.DeltaEnabled:
			plan.Delta = append(plan.Delta, n.RelPath)
		case opts.rawEligible() && opts.AcceptAux != nil:
			plan.Raw = append(plan.Raw, n.RelPath)
		default:
			plan.Regular = append(plan.Regular, regularNeed{n.RelPath, bucketLargeFile})
		}
	}
}

// dirRelPaths extracts, in order, the relpaths of every bucketDir
// entry in plan.Regular.
func dirRelPaths(plan needPlan) []string {
	var dirs []string
	for _, n := range plan.Regular {
		if n.Bucket == bucketDir {
			dirs = append(dirs, n.RelPath)
		}
	}
	return dirs
}
