package session

import (
	"bytes"
	"io"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/protocol"
)

// clientHello sends magic+version then reads the peer's, the client
// side of spec §4.2's handshake ("client sends magic+version first").
func clientHello(rw io.ReadWriter) error {
	if err := writeHello(rw); err != nil {
		return err
	}
	peerVersion, err := readHello(rw)
	if err != nil {
		return err
	}
	if peerVersion != protocol.Version {
		return bliterr.VersionMismatch(protocol.Version, peerVersion)
	}
	return nil
}

// serverHello reads the peer's magic+version then echoes its own, the
// server side of spec §4.2's handshake.
func serverHello(rw io.ReadWriter) error {
	peerVersion, err := readHello(rw)
	if err != nil {
		return err
	}
	if err := writeHello(rw); err != nil {
		return err
	}
	if peerVersion != protocol.Version {
		return bliterr.VersionMismatch(protocol.Version, peerVersion)
	}
	return nil
}

func writeHello(w io.Writer) error {
	var buf [5]byte
	copy(buf[:4], protocol.Magic[:])
	buf[4] = protocol.Version
	_, err := w.Write(buf[:])
	return err
}

func readHello(r io.Reader) (byte, error) {
	var buf [5]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	if !bytes.Equal(buf[:4], protocol.Magic[:]) {
		return 0, bliterr.ProtocolViolation("bad magic %q", buf[:4])
	}
	return buf[4], nil
}
