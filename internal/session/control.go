package session

import (
	"fmt"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/protocol"
)

func sendStart(c *frame.Codec, flags protocol.StartFlags) error {
	var w frame.Writer
	w.PutU32(uint32(flags))
	return c.WriteFrame(protocol.Start, w.Bytes())
}

func recvStart(c *frame.Codec) (protocol.StartFlags, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return 0, err
	}
	if f.Type != protocol.Start {
		return 0, bliterr.ProtocolViolation("expected START, got %s", f.Type)
	}
	r := frame.NewReader(f.Payload)
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return protocol.StartFlags(v), nil
}

func sendOK(c *frame.Codec) error { return c.WriteFrame(protocol.OK, nil) }

func recvOK(c *frame.Codec) error {
	f, err := c.ReadFrame()
	if err != nil {
		return err
	}
	switch f.Type {
	case protocol.OK:
		return nil
	case protocol.Error:
		return peerError(f.Payload)
	default:
		return bliterr.ProtocolViolation("expected OK, got %s", f.Type)
	}
}

func sendDone(c *frame.Codec) error { return c.WriteFrame(protocol.Done, nil) }

func recvDone(c *frame.Codec) error {
	f, err := c.ReadFrame()
	if err != nil {
		return err
	}
	switch f.Type {
	case protocol.Done:
		return nil
	case protocol.Error:
		return peerError(f.Payload)
	default:
		return bliterr.ProtocolViolation("expected DONE, got %s", f.Type)
	}
}

func sendSessionError(c *frame.Codec, cause error) error {
	var w frame.Writer
	w.PutString(cause.Error())
	return c.WriteFrame(protocol.Error, w.Bytes())
}

func peerError(payload []byte) error {
	r := frame.NewReader(payload)
	msg, err := r.String()
	if err != nil {
		return bliterr.ProtocolViolation("malformed ERROR frame")
	}
	return fmt.Errorf("peer reported: %s", msg)
}

func encodeMkdir(relpath string, mode uint32) []byte {
	var w frame.Writer
	w.PutString(relpath)
	w.PutU32(mode)
	return w.Bytes()
}

func decodeMkdir(payload []byte) (relpath string, mode uint32, err error) {
	r := frame.NewReader(payload)
	if relpath, err = r.String(); err != nil {
		return "", 0, err
	}
	mode, err = r.U32()
	return relpath, mode, err
}

func encodeSymlink(relpath, target string) []byte {
	var w frame.Writer
	w.PutString(relpath)
	w.PutString(target)
	return w.Bytes()
}

func decodeSymlink(payload []byte) (relpath, target string, err error) {
	r := frame.NewReader(payload)
	if relpath, err = r.String(); err != nil {
		return "", "", err
	}
	target, err = r.String()
	return relpath, target, err
}

// encodeSetAttr/decodeSetAttr carry a directory's deferred mtime+mode
// (spec §4.4: directories are created via MKDIR, then their mtime is
// set via SET_ATTR after every descendant exists, since creating a
// child bumps the parent's mtime).
func encodeSetAttr(relpath string, mtimeSec int64, mtimeNsec, mode uint32) []byte {
	var w frame.Writer
	w.PutString(relpath)
	w.PutI64(mtimeSec)
	w.PutU32(mtimeNsec)
	w.PutU32(mode)
	return w.Bytes()
}

func decodeSetAttr(payload []byte) (relpath string, mtimeSec int64, mtimeNsec, mode uint32, err error) {
	r := frame.NewReader(payload)
	if relpath, err = r.String(); err != nil {
		return "", 0, 0, 0, err
	}
	if mtimeSec, err = r.I64(); err != nil {
		return "", 0, 0, 0, err
	}
	if mtimeNsec, err = r.U32(); err != nil {
		return "", 0, 0, 0, err
	}
	mode, err = r.U32()
	return relpath, mtimeSec, mtimeNsec, mode, err
}
