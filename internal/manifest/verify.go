package manifest

import (
	"io"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/checksum"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/protocol"
)

// SendHashRequest asks the peer for strong hashes of the given paths
// (spec §4.11, and reused by checksum-mode tie-breaking per spec §9
// Open Question).
func SendHashRequest(c *frame.Codec, paths []string) error {
	var w frame.Writer
	w.PutU32(uint32(len(paths)))
	for _, p := range paths {
		w.PutString(p)
	}
	return c.WriteFrame(protocol.VerifyReq, w.Bytes())
}

// ReceiveHashRequest decodes a VERIFY_REQ frame's path list.
func ReceiveHashRequest(payload []byte) ([]string, error) {
	r := frame.NewReader(payload)
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	paths := make([]string, n)
	for i := range paths {
		if paths[i], err = r.String(); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// HashStrongFiles computes the strong hash of each path under local,
// producing the VERIFY_HASH response payload's source data.
func HashStrongFiles(local *fsys.FS, paths []string) (map[string][32]byte, error) {
	out := make(map[string][32]byte, len(paths))
	for _, p := range paths {
		h, err := hashOne(local, p)
		if err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, nil
}

func hashOne(local *fsys.FS, relpath string) ([32]byte, error) {
	f, err := local.Open(relpath)
	if err != nil {
		return [32]byte{}, err
	}
	defer f.Close()
	return checksum.StrongHashReader(io.Reader(f))
}

// SendHashResponse emits a VERIFY_HASH frame carrying one strong hash
// per requested path, in request order.
func SendHashResponse(c *frame.Codec, paths []string, hashes map[string][32]byte) error {
	var w frame.Writer
	w.PutU32(uint32(len(paths)))
	for _, p := range paths {
		h := hashes[p]
		w.PutBytes(h[:])
	}
	return c.WriteFrame(protocol.VerifyHash, w.Bytes())
}

// ReceiveHashResponse decodes a VERIFY_HASH frame back into a
// path->hash map, given the paths in the order they were requested.
func ReceiveHashResponse(payload []byte, paths []string) (map[string][32]byte, error) {
	r := frame.NewReader(payload)
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if int(n) != len(paths) {
		return nil, bliterr.ProtocolViolation("verify hash response: expected %d hashes, got %d", len(paths), n)
	}
	out := make(map[string][32]byte, n)
	for i := 0; i < int(n); i++ {
		b, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		var h [32]byte
		copy(h[:], b)
		out[paths[i]] = h
	}
	return out, nil
}
