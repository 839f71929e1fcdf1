//go:build !linux

package fsys

import (
	"io"
	"os"
)

// SendFile is the portable fallback used on platforms without a
// wired zero-copy path (spec §9: "specify them as optional adapter
// capabilities and provide a portable fallback").
func SendFile(dst io.Writer, src *os.File, offset, length int64) (int64, error) {
	return io.Copy(dst, io.NewSectionReader(src, offset, length))
}
