// Package manifest builds and diffs the ordered entry lists of spec
// §3-§4.4: the manifest a sender builds for its tree, and the
// need-list a receiver computes by diffing sender and local
// manifests. Grounded on teacher's sendFileList (rsyncd/rsyncd.go,
// filepath.Walk-driven) and ReceiveFileList/File
// (internal/receiver/receiver.go), generalized from rsync's
// inherited-flag wire format to blit's explicit MANIFEST_ENTRY frame.
package manifest

import (
	"time"

	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/protocol"
)

// Entry is one manifest entry (spec §3).
type Entry struct {
	RelPath    string
	Size       uint64
	MTimeSec   int64
	MTimeNsec  uint32
	Kind       protocol.EntryKind
	Mode       uint32
	LinkTarget string
}

// Manifest is the ordered sequence of entries one side built for one
// session (spec §3).
type Manifest struct {
	Entries    []Entry
	DatasetBytes uint64
}

// Build walks root via fs and produces a Manifest in the
// lexicographic, depth-first order spec §4.4 requires for
// reproducibility.
func Build(fs *fsys.FS, includeEmptyDirs bool, exclude fsys.ExcludeFunc) (*Manifest, error) {
	m := &Manifest{}
	err := fs.Walk(includeEmptyDirs, exclude, func(e fsys.Entry) error {
		entry := fromFSEntry(e)
		m.Entries = append(m.Entries, entry)
		if entry.Kind == protocol.KindFile {
			m.DatasetBytes += entry.Size
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func fromFSEntry(e fsys.Entry) Entry {
	var kind protocol.EntryKind
	switch e.Kind {
	case fsys.KindDir:
		kind = protocol.KindDir
	case fsys.KindSymlink:
		kind = protocol.KindSymlink
	default:
		kind = protocol.KindFile
	}
	return Entry{
		RelPath:    e.RelPath,
		Size:       uint64(e.Size),
		MTimeSec:   e.ModTime.Unix(),
		MTimeNsec:  uint32(e.ModTime.Nanosecond()),
		Kind:       kind,
		Mode:       e.Mode,
		LinkTarget: e.LinkTarget,
	}
}

// MTime reconstructs the entry's modification time.
func (e Entry) MTime() time.Time {
	return time.Unix(e.MTimeSec, int64(e.MTimeNsec)).UTC()
}

// ByPath indexes a manifest's entries for O(1) lookup, used by the
// diff and by mirror-delete's expected-set membership test.
func (m *Manifest) ByPath() map[string]Entry {
	idx := make(map[string]Entry, len(m.Entries))
	for _, e := range m.Entries {
		idx[e.RelPath] = e
	}
	return idx
}

// ExpectedSet is the set of relative paths a sender declared,
// consumed by the receiver after DONE to drive mirror-delete (spec
// §3, §4.10).
func (m *Manifest) ExpectedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.Entries))
	for _, e := range m.Entries {
		set[e.RelPath] = struct{}{}
	}
	return set
}
