package session

import (
	"github.com/blit-sync/blit/internal/bundler"
	"github.com/blit-sync/blit/internal/deltamover"
	"github.com/blit-sync/blit/internal/filemover"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/internal/rawmover"
	"github.com/blit-sync/blit/protocol"
)

// runSender is the content-holding side of a session (spec §4.9): it
// publishes its manifest, answers any VERIFY_REQ hash requests, then
// either serves the receiver's need-list (normal mode) or stops after
// the manifest exchange (verify mode, spec §4.11 — the receiver alone
// produces the report).
func runSender(c *frame.Codec, local *fsys.FS, opts Options) error {
	mf, err := manifest.Build(local, opts.IncludeEmptyDirs, opts.Exclude)
	if err != nil {
		return err
	}
	if err := manifest.WriteTo(c, mf); err != nil {
		return err
	}

	if opts.VerifyOnly {
		if opts.ChecksumMode {
			if err := serveHashRequest(c, local); err != nil {
				return err
			}
		}
		if err := recvDone(c); err != nil {
			return err
		}
		return sendOK(c)
	}

	if opts.ChecksumMode {
		if err := serveHashRequest(c, local); err != nil {
			return err
		}
	}

	plan, err := readNeedList(c)
	if err != nil {
		return err
	}

	byPath := mf.ByPath()

	if err := dispatchRegular(c, local, byPath, plan.Regular, opts); err != nil {
		return err
	}
	if err := dispatchDirAttrs(c, byPath, plan.Regular); err != nil {
		return err
	}
	if err := dispatchRaw(local, byPath, plan.Raw, opts); err != nil {
		return err
	}
	if err := dispatchDelta(c, local, byPath, plan.Delta, opts); err != nil {
		return err
	}

	if err := recvDone(c); err != nil {
		return err
	}
	return sendOK(c)
}

// serveHashRequest answers exactly one VERIFY_REQ/VERIFY_HASH round,
// used both by checksum-mode tie-breaking (spec §9) and verify mode
// (spec §4.11).
func serveHashRequest(c *frame.Codec, local *fsys.FS) error {
	f, err := c.ReadFrame()
	if err != nil {
		return err
	}
	paths, err := manifest.ReceiveHashRequest(f.Payload)
	if err != nil {
		return err
	}
	hashes, err := manifest.HashStrongFiles(local, paths)
	if err != nil {
		return err
	}
	return manifest.SendHashResponse(c, paths, hashes)
}

func dispatchRegular(c *frame.Codec, local *fsys.FS, byPath map[string]manifest.Entry, regular []regularNeed, opts Options) error {
	var smallEntries []manifest.Entry
	for _, n := range regular {
		e, ok := byPath[n.RelPath]
		if !ok {
			continue
		}
		switch n.Bucket {
		case bucketDir:
			if err := c.WriteFrame(protocol.Mkdir, encodeMkdir(e.RelPath, e.Mode)); err != nil {
				return err
			}
		case bucketSymlink:
			if err := c.WriteFrame(protocol.Symlink, encodeSymlink(e.RelPath, e.LinkTarget)); err != nil {
				return err
			}
		case bucketSmallFile:
			smallEntries = append(smallEntries, e)
		case bucketMediumFile, bucketLargeFile:
			if err := filemover.Send(c, local, e, opts.netChunkBytes()); err != nil {
				return err
			}
			opts.stats().AddFileSent(int64(e.Size))
		}
	}
	if len(smallEntries) > 0 {
		if err := bundler.WriteBundle(c, local, smallEntries, opts.BundleChunkBytes); err != nil {
			return err
		}
		for _, e := range smallEntries {
			opts.stats().AddFileSent(int64(e.Size))
		}
	}
	return nil
}

// dispatchDirAttrs emits the deferred SET_ATTR round for every
// directory need, children before parents (reversing the manifest's
// parent-before-child order), so a child's creation doesn't clobber
// its parent's just-applied mtime (spec §4.4).
func dispatchDirAttrs(c *frame.Codec, byPath map[string]manifest.Entry, regular []regularNeed) error {
	dirs := dirRelPaths(needPlan{Regular: regular})
	for i := len(dirs) - 1; i >= 0; i-- {
		e, ok := byPath[dirs[i]]
		if !ok {
			continue
		}
		payload := encodeSetAttr(e.RelPath, e.MTimeSec, e.MTimeNsec, e.Mode)
		if err := c.WriteFrame(protocol.SetAttr, payload); err != nil {
			return err
		}
	}
	return nil
}

func dispatchRaw(local *fsys.FS, byPath map[string]manifest.Entry, raw []string, opts Options) error {
	for _, relpath := range raw {
		e, ok := byPath[relpath]
		if !ok {
			continue
		}
		conns, err := opts.DialAux(opts.NetWorkers)
		if err != nil {
			return err
		}
		ranges := rawmover.SplitRanges(e, len(conns))
		err = rawmover.RunSenderPool(conns, local, ranges, opts.netChunkBytes())
		closeAll(conns)
		if err != nil {
			return err
		}
		opts.stats().AddFileSent(int64(e.Size))
	}
	return nil
}

func dispatchDelta(c *frame.Codec, local *fsys.FS, byPath map[string]manifest.Entry, deltaPaths []string, opts Options) error {
	for _, relpath := range deltaPaths {
		e, ok := byPath[relpath]
		if !ok {
			continue
		}
		_, _, blockSize, blocks, err := deltamover.ReceiveNeedRanges(c)
		if err != nil {
			return err
		}
		if blockSize == 0 {
			blockSize = opts.BlockSize
		}
		if err := deltamover.SendDelta(c, local, e, blockSize, blocks); err != nil {
			return err
		}
		opts.stats().AddFileSent(int64(e.Size))
	}
	return nil
}

func closeAll(conns []*frame.Codec) {
	for _, c := range conns {
		if closer, ok := c.Raw().(interface{ Close() error }); ok {
			closer.Close()
		}
	}
}
