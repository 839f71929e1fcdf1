package session

import (
	"sort"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/protocol"
)

// runVerify is the receiver side of spec §4.11's read-only sub-mode:
// compare the sender's manifest against the local tree (and, for
// same-size ties in checksum mode, strong hashes) and report drift
// without writing anything.
func runVerify(c *frame.Codec, local *fsys.FS, sender *manifest.Manifest, opts Options) (*VerifyReport, error) {
	localManifest, err := manifest.Build(local, true, opts.Exclude)
	if err != nil {
		return nil, err
	}
	localByPath := localManifest.ByPath()
	senderByPath := sender.ByPath()

	report := &VerifyReport{}

	var tieCandidates []string
	for _, e := range sender.Entries {
		l, ok := localByPath[e.RelPath]
		if !ok {
			report.Added = append(report.Added, e.RelPath)
			continue
		}
		if e.Kind != protocol.KindFile {
			continue
		}
		if l.Kind != protocol.KindFile {
			report.SizeDiff = append(report.SizeDiff, e.RelPath)
			continue
		}
		if l.Size != e.Size {
			report.SizeDiff = append(report.SizeDiff, e.RelPath)
			continue
		}
		mtimeDelta := e.MTime().Sub(l.MTime())
		if mtimeDelta < 0 {
			mtimeDelta = -mtimeDelta
		}
		if mtimeDelta > manifest.MTimeTolerance {
			report.MTimeDiff = append(report.MTimeDiff, e.RelPath)
		}
		if opts.ChecksumMode {
			tieCandidates = append(tieCandidates, e.RelPath)
		}
	}
	for relpath := range localByPath {
		if _, ok := senderByPath[relpath]; !ok {
			report.Missing = append(report.Missing, relpath)
		}
	}
	sort.Strings(report.Missing)

	if opts.ChecksumMode {
		hashDiff, err := verifyHashDiff(c, local, tieCandidates)
		if err != nil {
			return nil, err
		}
		report.HashDiff = hashDiff
	}

	return report, nil
}

func verifyHashDiff(c *frame.Codec, local *fsys.FS, paths []string) ([]string, error) {
	if err := manifest.SendHashRequest(c, paths); err != nil {
		return nil, err
	}
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f.Type != protocol.VerifyHash {
		return nil, bliterr.ProtocolViolation("expected VERIFY_HASH, got %s", f.Type)
	}
	senderHashes, err := manifest.ReceiveHashResponse(f.Payload, paths)
	if err != nil {
		return nil, err
	}
	localHashes, err := manifest.HashStrongFiles(local, paths)
	if err != nil {
		return nil, err
	}
	var diff []string
	for _, p := range paths {
		if localHashes[p] != senderHashes[p] {
			diff = append(diff, p)
		}
	}
	return diff, nil
}
