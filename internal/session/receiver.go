package session

import (
	"golang.org/x/sync/errgroup"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/blitstats"
	"github.com/blit-sync/blit/internal/bundler"
	"github.com/blit-sync/blit/internal/deltamover"
	"github.com/blit-sync/blit/internal/filemover"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/internal/mirrordelete"
	"github.com/blit-sync/blit/internal/rawmover"
	"github.com/blit-sync/blit/protocol"
)

// Result is what a completed session reports back to its caller.
type Result struct {
	Stats   blitstats.Snapshot
	Deleted []string
	Report  *VerifyReport
}

// VerifyReport is the difference report spec §4.11's read-only verify
// sub-mode produces: no writes, just a description of drift.
type VerifyReport struct {
	Added     []string // sender has it, receiver doesn't
	Missing   []string // receiver has it, sender doesn't declare it
	SizeDiff  []string
	MTimeDiff []string
	HashDiff  []string
}

// runReceiver is the destination side of a session (spec §4.9): it
// diffs the sender's manifest against its own tree, tells the sender
// what it needs, applies every incoming frame, and (if configured)
// mirror-deletes anything outside the sender's expected-set.
func runReceiver(c *frame.Codec, local *fsys.FS, opts Options) (*Result, error) {
	sender, err := manifest.ReadFrom(c)
	if err != nil {
		return nil, err
	}

	if opts.VerifyOnly {
		report, err := runVerify(c, local, sender, opts)
		if err != nil {
			return nil, err
		}
		if err := sendDone(c); err != nil {
			return nil, err
		}
		if err := recvOK(c); err != nil {
			return nil, err
		}
		return &Result{Report: report, Stats: opts.stats().Snapshot()}, nil
	}

	senderHashes, err := resolveTieHashes(c, sender, local, opts)
	if err != nil {
		return nil, err
	}

	needs, err := manifest.Diff(sender, local, opts.ChecksumMode, senderHashes)
	if err != nil {
		return nil, err
	}
	plan := classifyNeeds(needs, local, opts)

	if err := writeNeedList(c, plan); err != nil {
		return nil, err
	}

	if err := applyPlan(c, local, plan, opts); err != nil {
		return nil, err
	}

	if err := sendDone(c); err != nil {
		return nil, err
	}
	if err := recvOK(c); err != nil {
		return nil, err
	}

	var deleted []string
	if opts.DeleteMirror {
		deleted, err = mirrordelete.Delete(local, sender.ExpectedSet())
		if err != nil {
			return nil, err
		}
		for range deleted {
			opts.stats().AddFileDeleted()
		}
	}

	return &Result{Deleted: deleted, Stats: opts.stats().Snapshot()}, nil
}

func resolveTieHashes(c *frame.Codec, sender *manifest.Manifest, local *fsys.FS, opts Options) (map[string][32]byte, error) {
	if !opts.ChecksumMode {
		return nil, nil
	}
	candidates, err := manifest.TieCandidates(sender, local)
	if err != nil {
		return nil, err
	}
	if err := manifest.SendHashRequest(c, candidates); err != nil {
		return nil, err
	}
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f.Type != protocol.VerifyHash {
		return nil, bliterr.ProtocolViolation("expected VERIFY_HASH, got %s", f.Type)
	}
	return manifest.ReceiveHashResponse(f.Payload, candidates)
}

// applyPlan runs the main control-stream demux loop (mkdir/symlink/
// bundle/filemover, then directory SET_ATTR, then delta rounds) while
// any raw-path files run concurrently over their own auxiliary
// connections (spec §5: worker pool alongside the main stream).
func applyPlan(c *frame.Codec, local *fsys.FS, plan needPlan, opts Options) error {
	var g errgroup.Group

	if len(plan.Raw) > 0 {
		g.Go(func() error { return applyRaw(local, plan.Raw, opts) })
	}

	g.Go(func() error {
		regularTotal := countRegular(plan.Regular)
		if err := applyRegular(c, local, regularTotal, opts); err != nil {
			return err
		}
		if err := applyDirAttrs(c, local, dirRelPaths(plan)); err != nil {
			return err
		}
		return applyDeltaPaths(c, local, plan.Delta, opts)
	})

	return g.Wait()
}

func countRegular(regular []regularNeed) int {
	n := 0
	for _, r := range regular {
		if r.Bucket != bucketSmallFile {
			n++
		}
	}
	// Every small file is bundled together, but how many of them there
	// are is only known once the bundle itself reports via onFile; here
	// we just need the distinct small-file *count* to add once the
	// bundle has been read, so count them individually too.
	for _, r := range regular {
		if r.Bucket == bucketSmallFile {
			n++
		}
	}
	return n
}

func applyRegular(c *frame.Codec, local *fsys.FS, total int, opts Options) error {
	applied := 0
	for applied < total {
		f, err := c.ReadFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case protocol.Mkdir:
			relpath, mode, err := decodeMkdir(f.Payload)
			if err != nil {
				return err
			}
			if err := local.Mkdir(relpath, mode); err != nil {
				return err
			}
			applied++
		case protocol.Symlink:
			relpath, target, err := decodeSymlink(f.Payload)
			if err != nil {
				return err
			}
			if err := local.Symlink(relpath, target); err != nil {
				return err
			}
			applied++
		case protocol.TarStart:
			n := 0
			if err := bundler.ReadBundleStarted(c, local, func(_ string, size int64) {
				n++
				opts.stats().AddFileReceived(size)
			}); err != nil {
				return err
			}
			applied += n
		case protocol.FileStart:
			_, size, err := filemover.ReceiveStarted(c, local, f.Payload, opts.SparseThreshold)
			if err != nil {
				return err
			}
			applied++
			opts.stats().AddFileReceived(size)
		default:
			return bliterr.ProtocolViolation("unexpected frame %s in regular dispatch", f.Type)
		}
	}
	return nil
}

func applyDirAttrs(c *frame.Codec, local *fsys.FS, dirs []string) error {
	for range dirs {
		f, err := c.ReadFrame()
		if err != nil {
			return err
		}
		if f.Type != protocol.SetAttr {
			return bliterr.ProtocolViolation("expected SET_ATTR, got %s", f.Type)
		}
		relpath, mtimeSec, mtimeNsec, mode, err := decodeSetAttr(f.Payload)
		if err != nil {
			return err
		}
		mtime := manifest.Entry{MTimeSec: mtimeSec, MTimeNsec: mtimeNsec}.MTime()
		if err := local.SetAttr(relpath, mtime, mode, false); err != nil {
			return err
		}
	}
	return nil
}

func applyDeltaPaths(c *frame.Codec, local *fsys.FS, deltaPaths []string, opts Options) error {
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = protocol.DefaultBlockSize
	}
	for _, relpath := range deltaPaths {
		size, blocks, err := deltamover.ComputeSignatures(local, relpath, blockSize)
		if err != nil {
			return err
		}
		if err := deltamover.SendNeedRanges(c, relpath, size, blockSize, blocks); err != nil {
			return err
		}
		_, appliedSize, err := deltamover.ApplyDelta(c, local, blockSize)
		if err != nil {
			return err
		}
		opts.stats().AddFileReceived(appliedSize)
	}
	return nil
}

func applyRaw(local *fsys.FS, raw []string, opts Options) error {
	for range raw {
		conns, err := opts.AcceptAux(opts.NetWorkers)
		if err != nil {
			return err
		}
		co := rawmover.NewCoordinator(local)
		err = co.RunReceiverPool(conns, func(_ string, size int64) { opts.stats().AddFileReceived(size) })
		closeAll(conns)
		if err != nil {
			return err
		}
	}
	return nil
}
