//go:build linux

package fsys

import (
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// SendFile copies length bytes from src (at offset) to dst using the
// sendfile(2) zero-copy path when dst is backed by a raw TCP socket
// (spec §4.7: "Zero-copy send ... used on supported platforms"), and
// falls back to a plain copy otherwise (e.g. dst is TLS-wrapped, so
// the kernel cannot hand it bytes directly).
func SendFile(dst io.Writer, src *os.File, offset, length int64) (int64, error) {
	tc, ok := underlyingTCPConn(dst)
	if !ok {
		return copyFallback(dst, src, offset, length)
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return copyFallback(dst, src, offset, length)
	}

	var written int64
	var sendErr error
	off := offset
	remaining := length
	ctrlErr := raw.Write(func(fd uintptr) bool {
		for remaining > 0 {
			n, err := unix.Sendfile(int(fd), int(src.Fd()), &off, int(remaining))
			if n > 0 {
				written += int64(n)
				remaining -= int64(n)
			}
			if err == unix.EAGAIN {
				return false // ask runtime to wait for writability, then retry
			}
			if err != nil {
				sendErr = err
				return true
			}
			if n == 0 {
				break
			}
		}
		return true
	})
	if ctrlErr != nil {
		return written, ctrlErr
	}
	if sendErr != nil {
		return written, sendErr
	}
	if written < length {
		// Partial sendfile (e.g. EOF raced the caller's length); finish
		// with a portable copy of the remainder.
		more, err := copyFallback(dst, src, off, length-written)
		return written + more, err
	}
	return written, nil
}

func underlyingTCPConn(w io.Writer) (*net.TCPConn, bool) {
	tc, ok := w.(*net.TCPConn)
	return tc, ok
}

func copyFallback(dst io.Writer, src *os.File, offset, length int64) (int64, error) {
	return io.Copy(dst, io.NewSectionReader(src, offset, length))
}
