// Package session implements the transfer engine state machines of
// spec §4.9: the client push/pull driver and the server accept/serve
// loop, wiring the manifest, bundler, filemover, rawmover, and
// deltamover packages together per need-list entry, plus mirror-delete
// at session end. Grounded on teacher's receiver.Transfer.Do
// (internal/receiver/do.go, errgroup-driven generator/receiver split)
// and clientRun/rsyncMain (internal/maincmd/clientmaincmd.go) for the
// push/pull driver shape.
package session

import (
	"github.com/blit-sync/blit/internal/blitlog"
	"github.com/blit-sync/blit/internal/blitstats"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/protocol"
)

// Options configures one endpoint's side of a session. Both client and
// server build one of these from their own CLI flags / config; the two
// sides do not need identical Options beyond what the wire negotiates
// via START flags.
type Options struct {
	IncludeEmptyDirs bool
	Exclude          fsys.ExcludeFunc

	ChecksumMode    bool
	DeleteMirror    bool
	HighThroughput  bool
	VerifyOnly      bool
	NoTar           bool

	BundleThreshold  int64
	LargeThreshold   int64
	BundleChunkBytes int
	NetChunkBytes    int
	SparseThreshold  int
	BlockSize        int
	MaxFrameBytes    uint32

	// NetWorkers is the desired auxiliary-connection fan-out for the
	// parallel raw path (spec §4.7). Only exercised when DialAux (this
	// side acting as content sender) or AcceptAux (this side acting as
	// receiver) is non-nil; a nil hook falls back to the per-file
	// streamed mover for large files, spec §4.12's documented
	// single-stream fallback.
	NetWorkers int
	DialAux    func(workers int) ([]*frame.Codec, error)
	AcceptAux  func(workers int) ([]*frame.Codec, error)

	// DeltaEnabled opts a receiver into the delta-block path (spec
	// §4.8) for large files it already holds a differing copy of,
	// instead of a full raw/streamed retransfer.
	DeltaEnabled bool

	Stats  *blitstats.Counters
	Logger *blitlog.Logger
}

// Default returns Options populated with spec §4.1/§4.5-§4.7's
// documented defaults.
func Default() Options {
	return Options{
		IncludeEmptyDirs: false,
		BundleThreshold:  protocol.DefaultBundleThreshold,
		LargeThreshold:   protocol.DefaultLargeThreshold,
		BundleChunkBytes: 256 * 1024,
		NetChunkBytes:    protocol.DefaultNetChunkBytes,
		SparseThreshold:  protocol.DefaultSparseThreshold,
		BlockSize:        protocol.DefaultBlockSize,
		MaxFrameBytes:    protocol.DefaultMaxFrameBytes,
		NetWorkers:       protocol.DefaultNetWorkers,
		Stats:            &blitstats.Counters{},
	}
}

func (o Options) maxFrameBytes() uint32 {
	if o.HighThroughput {
		return protocol.HighThroughputFrameBytes
	}
	if o.MaxFrameBytes != 0 {
		return o.MaxFrameBytes
	}
	return protocol.DefaultMaxFrameBytes
}

func (o Options) netChunkBytes() int {
	if o.NetChunkBytes != 0 {
		return o.NetChunkBytes
	}
	if o.HighThroughput {
		return protocol.HighThroughputChunkBytes
	}
	return protocol.DefaultNetChunkBytes
}

func (o Options) startFlags() protocol.StartFlags {
	var f protocol.StartFlags
	if o.IncludeEmptyDirs {
		f |= protocol.FlagEmptyDirs
	}
	if o.ChecksumMode {
		f |= protocol.FlagChecksum
	}
	if o.HighThroughput {
		f |= protocol.FlagHighThroughput
	}
	if o.DeleteMirror {
		f |= protocol.FlagDeleteMirror
	}
	if o.VerifyOnly {
		f |= protocol.FlagVerifyOnly
	}
	if o.NoTar {
		f |= protocol.FlagNoTar
	}
	return f
}

func (o Options) rawEligible() bool {
	return o.NetWorkers > 1
}

func (o *Options) stats() *blitstats.Counters {
	if o.Stats == nil {
		o.Stats = &blitstats.Counters{}
	}
	return o.Stats
}

func (o Options) log() *blitlog.Logger {
	return o.Logger
}
