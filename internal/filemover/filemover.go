// Package filemover implements the per-file streamed mover of spec
// §4.6: one FILE_START/FILE_DATA*/FILE_END exchange per file, used
// for files above the bundle threshold and below the large-file
// threshold, or whenever bundling is disabled. Grounded on teacher's
// per-file receive loop (internal/receiver/receiver.go recvFile1,
// which reads into a PendingFile and applies perms on completion),
// adapted to blit's explicit frame boundaries instead of rsync's
// inherited streaming protocol, and to blit's sparse-hole
// preservation (spec §4.6, internal/fsys.SparseWriter).
package filemover

import (
	"io"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/protocol"
)

// DefaultChunkBytes bounds how much file content is carried in one
// FILE_DATA frame.
const DefaultChunkBytes = 1 << 20 // 1 MiB

// Send streams e's content from local as FILE_START, one or more
// FILE_DATA frames, then FILE_END.
func Send(c *frame.Codec, local *fsys.FS, e manifest.Entry, chunkBytes int) error {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	f, err := local.Open(e.RelPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var w frame.Writer
	w.PutString(e.RelPath)
	w.PutU64(e.Size)
	w.PutI64(e.MTimeSec)
	w.PutU32(e.MTimeNsec)
	w.PutU32(e.Mode)
	w.PutByte(byte(0)) // flags: read-only bit is receiver-platform-specific (spec §4.6), sender leaves unset
	if err := c.WriteFrame(protocol.FileStart, w.Bytes()); err != nil {
		return err
	}

	buf := make([]byte, chunkBytes)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if werr := c.WriteFrame(protocol.FileData, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return c.WriteFrame(protocol.FileEnd, nil)
}

// meta is the decoded FILE_START payload.
type meta struct {
	RelPath   string
	Size      uint64
	MTimeSec  int64
	MTimeNsec uint32
	Mode      uint32
	Flags     protocol.FileFlags
}

func decodeStart(payload []byte) (meta, error) {
	r := frame.NewReader(payload)
	var m meta
	var err error
	if m.RelPath, err = r.String(); err != nil {
		return meta{}, err
	}
	if m.Size, err = r.U64(); err != nil {
		return meta{}, err
	}
	if m.MTimeSec, err = r.I64(); err != nil {
		return meta{}, err
	}
	if m.MTimeNsec, err = r.U32(); err != nil {
		return meta{}, err
	}
	if m.Mode, err = r.U32(); err != nil {
		return meta{}, err
	}
	flagByte, err := r.Byte()
	if err != nil {
		return meta{}, err
	}
	m.Flags = protocol.FileFlags(flagByte)
	return m, nil
}

// Receive consumes FILE_START (expected to be the next frame on c),
// FILE_DATA*, FILE_END, writing content into local with sparse-hole
// preservation, and returns the relpath received and its size.
func Receive(c *frame.Codec, local *fsys.FS, sparseThreshold int) (string, int64, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return "", 0, err
	}
	if f.Type != protocol.FileStart {
		return "", 0, bliterr.ProtocolViolation("expected FILE_START, got %s", f.Type)
	}
	return ReceiveStarted(c, local, f.Payload, sparseThreshold)
}

// ReceiveStarted is Receive for a caller that already consumed the
// FILE_START frame itself and hands over its payload directly.
func ReceiveStarted(c *frame.Codec, local *fsys.FS, startPayload []byte, sparseThreshold int) (string, int64, error) {
	m, err := decodeStart(startPayload)
	if err != nil {
		return "", 0, err
	}

	raf, err := local.CreateRandomAccess(m.RelPath, int64(m.Size))
	if err != nil {
		return "", 0, err
	}
	sw := fsys.NewSparseWriter(raf, sparseThreshold)

	for {
		f, err := c.ReadFrame()
		if err != nil {
			raf.Cleanup()
			return "", 0, err
		}
		switch f.Type {
		case protocol.FileData:
			if _, err := sw.Write(f.Payload); err != nil {
				raf.Cleanup()
				return "", 0, err
			}
		case protocol.FileEnd:
			if err := raf.Commit(); err != nil {
				return "", 0, err
			}
			mtime := manifest.Entry{MTimeSec: m.MTimeSec, MTimeNsec: m.MTimeNsec}.MTime()
			readOnly := m.Flags.Has(protocol.FileFlagReadOnly)
			if err := local.SetAttr(m.RelPath, mtime, m.Mode, readOnly); err != nil {
				return "", 0, err
			}
			return m.RelPath, int64(m.Size), nil
		default:
			raf.Cleanup()
			return "", 0, bliterr.ProtocolViolation("expected FILE_DATA or FILE_END, got %s", f.Type)
		}
	}
}
