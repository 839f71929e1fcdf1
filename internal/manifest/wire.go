package manifest

import (
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/protocol"
)

// EncodeEntry serializes one Entry into a MANIFEST_ENTRY payload
// (spec §3: relpath, size, mtime sec+nsec, kind, mode, optional
// symlink target).
func EncodeEntry(e Entry) []byte {
	var w frame.Writer
	w.PutString(e.RelPath)
	w.PutByte(byte(e.Kind))
	w.PutU64(e.Size)
	w.PutI64(e.MTimeSec)
	w.PutU32(e.MTimeNsec)
	w.PutU32(e.Mode)
	if e.Kind == protocol.KindSymlink {
		w.PutString(e.LinkTarget)
	}
	return w.Bytes()
}

// DecodeEntry parses a MANIFEST_ENTRY payload.
func DecodeEntry(payload []byte) (Entry, error) {
	r := frame.NewReader(payload)
	var e Entry
	var err error
	if e.RelPath, err = r.String(); err != nil {
		return Entry{}, err
	}
	kindByte, err := r.Byte()
	if err != nil {
		return Entry{}, err
	}
	e.Kind = protocol.EntryKind(kindByte)
	if e.Size, err = r.U64(); err != nil {
		return Entry{}, err
	}
	if e.MTimeSec, err = r.I64(); err != nil {
		return Entry{}, err
	}
	if e.MTimeNsec, err = r.U32(); err != nil {
		return Entry{}, err
	}
	if e.Mode, err = r.U32(); err != nil {
		return Entry{}, err
	}
	if e.Kind == protocol.KindSymlink {
		if e.LinkTarget, err = r.String(); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// WriteTo streams a full manifest as MANIFEST_START, one
// MANIFEST_ENTRY per entry, then MANIFEST_END.
func WriteTo(c *frame.Codec, m *Manifest) error {
	if err := c.WriteFrame(protocol.ManifestStart, nil); err != nil {
		return err
	}
	for _, e := range m.Entries {
		if err := c.WriteFrame(protocol.ManifestEntry, EncodeEntry(e)); err != nil {
			return err
		}
	}
	return c.WriteFrame(protocol.ManifestEnd, nil)
}

// ReadFrom consumes MANIFEST_START, MANIFEST_ENTRY*, MANIFEST_END from
// the peer and reconstructs the Manifest. The caller is expected to
// already be in the state machine's manifest-receiving state (spec
// §4.9); any other frame type is a protocol violation.
func ReadFrom(c *frame.Codec) (*Manifest, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f.Type != protocol.ManifestStart {
		return nil, protocolViolation(protocol.ManifestStart, f.Type)
	}
	m := &Manifest{}
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return nil, err
		}
		switch f.Type {
		case protocol.ManifestEntry:
			e, err := DecodeEntry(f.Payload)
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, e)
			if e.Kind == protocol.KindFile {
				m.DatasetBytes += e.Size
			}
		case protocol.ManifestEnd:
			return m, nil
		default:
			return nil, protocolViolation(protocol.ManifestEntry, f.Type)
		}
	}
}
