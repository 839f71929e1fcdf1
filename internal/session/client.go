package session

import (
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/protocol"
)

// ClientPush is the client side of a `blit copy`/`mirror` where the
// local tree is the source: it declares itself sender over conn and
// drives runSender. conn is an already-connected byte stream (spec
// §1 leaves dialing/TLS/shell transport to the CLI layer).
func ClientPush(conn frame.Deadliner, local *fsys.FS, opts Options) error {
	if err := clientHello(conn); err != nil {
		return err
	}
	c := frame.NewCodec(conn, opts.maxFrameBytes())

	flags := opts.startFlags()
	if err := sendStart(c, flags); err != nil {
		return err
	}
	if err := recvOK(c); err != nil {
		return err
	}
	if err := runSender(c, local, opts); err != nil {
		sendSessionError(c, err)
		return err
	}
	return nil
}

// ClientPull is the client side of a `blit copy`/`mirror` where the
// local tree is the destination: it declares FlagPull over conn and
// drives runReceiver.
func ClientPull(conn frame.Deadliner, local *fsys.FS, opts Options) (*Result, error) {
	if err := clientHello(conn); err != nil {
		return nil, err
	}
	c := frame.NewCodec(conn, opts.maxFrameBytes())

	flags := opts.startFlags() | protocol.FlagPull
	if err := sendStart(c, flags); err != nil {
		return nil, err
	}
	if err := recvOK(c); err != nil {
		return nil, err
	}
	res, err := runReceiver(c, local, opts)
	if err != nil {
		sendSessionError(c, err)
		return nil, err
	}
	return res, nil
}
