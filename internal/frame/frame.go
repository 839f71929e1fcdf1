// Package frame implements the blit wire codec (spec §4.1): length
// prefixed typed frames, with a size-aware read/write deadline and a
// maximum frame size. There is no frame-level checksum; transport
// reliability is TCP's job, same assumption teacher's rsyncwire.Conn
// makes for its own int32/int64 stream.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/protocol"
)

// Frame is one [type][length][payload] unit.
type Frame struct {
	Type    protocol.FrameType
	Payload []byte
}

// Deadliner is the subset of net.Conn used to bound reads/writes. Any
// connected byte stream with deadlines satisfies it (spec §1).
type Deadliner interface {
	io.Reader
	io.Writer
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Codec reads and writes frames over one connection. It is not safe
// for concurrent reads, nor concurrent writes, but a concurrent
// reader and writer pair is fine (the generator/receiver split in
// spec §4.9 relies on this).
type Codec struct {
	conn Deadliner

	MaxFrameBytes uint32

	// Counting mirrors teacher's rsyncwire.CountingReader/Writer: byte
	// totals feed directly into blitstats.
	BytesRead    uint64
	BytesWritten uint64
}

func NewCodec(conn Deadliner, maxFrameBytes uint32) *Codec {
	if maxFrameBytes == 0 {
		maxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	return &Codec{conn: conn, MaxFrameBytes: maxFrameBytes}
}

// deadline computes the size-aware IO deadline of spec §4.1, clamped
// to [MinIOTimeout, MaxIOTimeout] seconds.
func deadline(length int) time.Time {
	secs := protocol.BaseHeaderTimeoutSeconds + length/protocol.MinThroughputBytesPerSec
	if secs < protocol.MinIOTimeout {
		secs = protocol.MinIOTimeout
	}
	if secs > protocol.MaxIOTimeout {
		secs = protocol.MaxIOTimeout
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

const headerSize = 1 + 4 // type byte + u32 length

// ReadFrame reads one frame, honoring the size-aware deadline. A
// deadline miss surfaces as bliterr.IOTimeout; an over-size frame as
// bliterr.FrameTooLarge.
func (c *Codec) ReadFrame() (Frame, error) {
	if err := c.conn.SetReadDeadline(deadline(0)); err != nil {
		return Frame{}, err
	}
	var header [headerSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return Frame{}, wrapTimeout(err, "read frame header")
	}
	c.BytesRead += headerSize

	typ := protocol.FrameType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > c.MaxFrameBytes {
		return Frame{}, bliterr.FrameTooLarge(length, c.MaxFrameBytes)
	}

	if err := c.conn.SetReadDeadline(deadline(int(length))); err != nil {
		return Frame{}, err
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return Frame{}, wrapTimeout(err, "read frame payload")
		}
	}
	c.BytesRead += uint64(length)

	return Frame{Type: typ, Payload: payload}, nil
}

// WriteFrame writes one frame, honoring the size-aware deadline.
func (c *Codec) WriteFrame(typ protocol.FrameType, payload []byte) error {
	if uint32(len(payload)) > c.MaxFrameBytes {
		return bliterr.FrameTooLarge(uint32(len(payload)), c.MaxFrameBytes)
	}
	if err := c.conn.SetWriteDeadline(deadline(len(payload))); err != nil {
		return err
	}
	var header [headerSize]byte
	header[0] = byte(typ)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return wrapTimeout(err, "write frame header")
	}
	c.BytesWritten += headerSize
	if len(payload) > 0 {
		if _, err := c.conn.Write(payload); err != nil {
			return wrapTimeout(err, "write frame payload")
		}
		c.BytesWritten += uint64(len(payload))
	}
	return nil
}

// WriteHeader writes just a frame's [type][length] header and sets
// the matching write deadline, leaving the payload write to the
// caller. Used by the parallel raw mover (spec §4.7) to hand payload
// bytes straight to sendfile(2) instead of buffering them through
// WriteFrame.
func (c *Codec) WriteHeader(typ protocol.FrameType, length uint32) error {
	if length > c.MaxFrameBytes {
		return bliterr.FrameTooLarge(length, c.MaxFrameBytes)
	}
	if err := c.conn.SetWriteDeadline(deadline(int(length))); err != nil {
		return err
	}
	var header [headerSize]byte
	header[0] = byte(typ)
	binary.BigEndian.PutUint32(header[1:], length)
	if _, err := c.conn.Write(header[:]); err != nil {
		return wrapTimeout(err, "write frame header")
	}
	c.BytesWritten += headerSize
	return nil
}

// Raw exposes the underlying connection for zero-copy payload writes
// following WriteHeader (spec §4.7: "Zero-copy send ... is used on
// supported platforms").
func (c *Codec) Raw() Deadliner { return c.conn }

// AddBytesWritten lets a caller that wrote a payload directly via Raw
// fold its byte count into the codec's accounting.
func (c *Codec) AddBytesWritten(n uint64) { c.BytesWritten += n }

func wrapTimeout(err error, op string) error {
	var ne net.Error
	if ok := asNetError(err, &ne); ok && ne.Timeout() {
		return bliterr.IOTimeout(op)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%s: %w", op, err)
	}
	return bliterr.IOTransient(op, err)
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}
