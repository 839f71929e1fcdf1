package manifest

import (
	"os"
	"time"

	"github.com/blit-sync/blit/internal/checksum"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/protocol"
)

// MTimeTolerance is the fast-change signal's tolerance (spec §3, §9
// Open Question: pinned to 1s for correctness; tests use a 3s
// tolerance to absorb clock skew between test hosts).
const MTimeTolerance = 1 * time.Second

// NeedEntry is one path the receiver requires, tagged with the
// sender's declared size/kind (spec §3).
type NeedEntry struct {
	RelPath    string
	Kind       protocol.EntryKind
	Size       uint64
	LinkTarget string
}

// TieCandidates returns the relpaths of sender file entries that are
// present locally with a matching size — the only paths checksum mode
// needs a strong hash for (spec §9 Open Question: hashing is scoped to
// ties to avoid O(full-corpus) hashing on every size mismatch). The
// caller fetches the sender's hash for these paths (VERIFY_REQ /
// VERIFY_HASH, spec §4.11) before calling Diff in checksum mode.
func TieCandidates(sender *Manifest, local *fsys.FS) ([]string, error) {
	var candidates []string
	for _, e := range sender.Entries {
		if e.Kind != protocol.KindFile {
			continue
		}
		localEntry, err := local.Lstat(e.RelPath)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return nil, err
		}
		if uint64(localEntry.Size) == e.Size {
			candidates = append(candidates, e.RelPath)
		}
	}
	return candidates, nil
}

// Diff computes the need-list by comparing a sender's manifest against
// the receiver's local tree (spec §4.4). In checksum mode, senderHashes
// must carry the sender's strong hash for every path returned by
// TieCandidates; Diff hashes the receiver's own copy of those paths
// and compares.
func Diff(sender *Manifest, local *fsys.FS, checksumMode bool, senderHashes map[string][32]byte) ([]NeedEntry, error) {
	var needs []NeedEntry
	for _, e := range sender.Entries {
		localEntry, err := local.Lstat(e.RelPath)
		missing := isNotExist(err)
		if err != nil && !missing {
			return nil, err
		}

		switch e.Kind {
		case protocol.KindDir:
			if missing {
				needs = append(needs, need(e))
			}
		case protocol.KindSymlink:
			if missing || localEntry.LinkTarget != e.LinkTarget {
				needs = append(needs, need(e))
			}
		case protocol.KindFile:
			include, err := needsFile(e, localEntry, missing, local, checksumMode, senderHashes)
			if err != nil {
				return nil, err
			}
			if include {
				needs = append(needs, need(e))
			}
		}
	}
	return needs, nil
}

func needsFile(e Entry, local fsys.Entry, missing bool, localFS *fsys.FS, checksumMode bool, senderHashes map[string][32]byte) (bool, error) {
	if missing {
		return true, nil
	}
	if uint64(local.Size) != e.Size {
		return true, nil
	}
	if checksumMode {
		senderHash, ok := senderHashes[e.RelPath]
		if !ok {
			// Caller didn't fetch a hash for this tie (a bug in the
			// caller, not a protocol condition); be conservative.
			return true, nil
		}
		lf, err := localFS.Open(e.RelPath)
		if err != nil {
			return false, err
		}
		defer lf.Close()
		localHash, err := checksum.StrongHashReader(lf)
		if err != nil {
			return false, err
		}
		return localHash != senderHash, nil
	}
	delta := e.MTime().Sub(local.ModTime)
	if delta < 0 {
		delta = -delta
	}
	return delta > MTimeTolerance, nil
}

func need(e Entry) NeedEntry {
	return NeedEntry{RelPath: e.RelPath, Kind: e.Kind, Size: e.Size, LinkTarget: e.LinkTarget}
}

func isNotExist(err error) bool {
	return err != nil && os.IsNotExist(err)
}
