package session

import (
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/protocol"
)

// ServeConn is the server/daemon side of a session (spec §4.9, §6
// "daemon" subcommand): it completes the handshake, reads the
// client's declared START flags to learn which of push or pull the
// client asked for, and plays the opposite role. local is the module's
// tree, already resolved by the caller; baseOpts carries the daemon's
// own tuning, with the session flags the client declared on the wire
// (ChecksumMode, DeleteMirror, VerifyOnly, IncludeEmptyDirs, NoTar,
// HighThroughput) overriding it.
func ServeConn(conn frame.Deadliner, local *fsys.FS, baseOpts Options) (*Result, error) {
	if err := serverHello(conn); err != nil {
		return nil, err
	}
	c := frame.NewCodec(conn, baseOpts.maxFrameBytes())

	flags, err := recvStart(c)
	if err != nil {
		return nil, err
	}
	opts := applyStartFlags(baseOpts, flags)
	if err := sendOK(c); err != nil {
		return nil, err
	}

	if flags.Has(protocol.FlagPull) {
		// Client is pulling: it is the receiver, so this side sends.
		if err := runSender(c, local, opts); err != nil {
			sendSessionError(c, err)
			return nil, err
		}
		return nil, nil
	}

	// Client is pushing: it is the sender, so this side receives.
	res, err := runReceiver(c, local, opts)
	if err != nil {
		sendSessionError(c, err)
		return nil, err
	}
	return res, nil
}

func applyStartFlags(base Options, flags protocol.StartFlags) Options {
	base.IncludeEmptyDirs = flags.Has(protocol.FlagEmptyDirs)
	base.ChecksumMode = flags.Has(protocol.FlagChecksum)
	base.HighThroughput = flags.Has(protocol.FlagHighThroughput)
	base.DeleteMirror = flags.Has(protocol.FlagDeleteMirror)
	base.VerifyOnly = flags.Has(protocol.FlagVerifyOnly)
	base.NoTar = flags.Has(protocol.FlagNoTar)
	return base
}
