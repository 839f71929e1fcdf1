package checksum

import (
	"io"

	"github.com/zeebo/blake3"
)

// StrongSize is the full strong-hash width used for whole-file
// checksum-mode comparisons (spec §3, §4.4): "BLAKE3-class 256-bit".
const StrongSize = 32

// BlockStrongSize is the truncated width used for per-block delta
// signatures (spec §4.8): "128-bit truncation of BLAKE3".
const BlockStrongSize = 16

// StrongHash computes the full 256-bit BLAKE3 digest of data.
func StrongHash(data []byte) [StrongSize]byte {
	var out [StrongSize]byte
	sum := blake3.Sum256(data)
	copy(out[:], sum[:])
	return out
}

// StrongHashReader streams r through BLAKE3 without buffering the
// whole file, used when hashing large files for checksum-mode
// diffing (spec §4.4).
func StrongHashReader(r io.Reader) ([StrongSize]byte, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return [StrongSize]byte{}, err
	}
	var out [StrongSize]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// BlockStrongHash computes the truncated 128-bit strong hash used for
// one delta block (spec §4.8).
func BlockStrongHash(block []byte) [BlockStrongSize]byte {
	full := StrongHash(block)
	var out [BlockStrongSize]byte
	copy(out[:], full[:BlockStrongSize])
	return out
}
