// Package rawmover implements the parallel large-file raw path of
// spec §4.7: files at or above the large-file threshold are split
// into byte ranges, each shipped over its own auxiliary connection
// via FILE_RAW_START/PFILE_DATA/PFILE_END, using sendfile(2)
// zero-copy (internal/fsys.SendFile) where the platform and
// connection type allow it. Grounded on teacher's chunked transfer
// loop (rsyncd/rsyncd.go handleConn's send-files loop), generalized
// to many concurrent auxiliary connections with a coverage tracker
// (supplementing teacher, which never splits a single file across
// connections). Concurrency via golang.org/x/sync/errgroup, the same
// library teacher's receiver.Transfer.Do uses for its
// generator/receiver pair.
package rawmover

import (
	"errors"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/protocol"
)

// DefaultChunkBytes bounds one PFILE_DATA frame's payload.
const DefaultChunkBytes = protocol.DefaultNetChunkBytes

// Range is one contiguous byte span of a file, dispatched to one
// worker connection.
type Range struct {
	Entry  manifest.Entry
	Offset int64
	Length int64
}

// SplitRanges partitions e into up to workers contiguous ranges of
// roughly equal size (spec §4.7: "up to net_workers auxiliary
// connections"). workers is clamped to at least 1; a zero-length file
// yields a single zero-length range so FILE_RAW_START still fires and
// the receiver can create the (empty) destination.
func SplitRanges(e manifest.Entry, workers int) []Range {
	if workers < 1 {
		workers = 1
	}
	size := int64(e.Size)
	if size == 0 {
		return []Range{{Entry: e, Offset: 0, Length: 0}}
	}
	if int64(workers) > size {
		workers = int(size)
	}
	base := size / int64(workers)
	rem := size % int64(workers)
	ranges := make([]Range, 0, workers)
	var offset int64
	for i := 0; i < workers; i++ {
		length := base
		if int64(i) < rem {
			length++
		}
		if length == 0 {
			continue
		}
		ranges = append(ranges, Range{Entry: e, Offset: offset, Length: length})
		offset += length
	}
	return ranges
}

type startMeta struct {
	RelPath   string
	Size      uint64
	Offset    int64
	Length    int64
	MTimeSec  int64
	MTimeNsec uint32
	Mode      uint32
	Flags     protocol.FileFlags
}

func encodeStart(m startMeta) []byte {
	var w frame.Writer
	w.PutString(m.RelPath)
	w.PutU64(m.Size)
	w.PutI64(m.Offset)
	w.PutI64(m.Length)
	w.PutI64(m.MTimeSec)
	w.PutU32(m.MTimeNsec)
	w.PutU32(m.Mode)
	w.PutByte(byte(m.Flags))
	return w.Bytes()
}

func decodeStart(payload []byte) (startMeta, error) {
	r := frame.NewReader(payload)
	var m startMeta
	var err error
	if m.RelPath, err = r.String(); err != nil {
		return startMeta{}, err
	}
	if m.Size, err = r.U64(); err != nil {
		return startMeta{}, err
	}
	if m.Offset, err = r.I64(); err != nil {
		return startMeta{}, err
	}
	if m.Length, err = r.I64(); err != nil {
		return startMeta{}, err
	}
	if m.MTimeSec, err = r.I64(); err != nil {
		return startMeta{}, err
	}
	if m.MTimeNsec, err = r.U32(); err != nil {
		return startMeta{}, err
	}
	if m.Mode, err = r.U32(); err != nil {
		return startMeta{}, err
	}
	flagByte, err := r.Byte()
	if err != nil {
		return startMeta{}, err
	}
	m.Flags = protocol.FileFlags(flagByte)
	return m, nil
}

// RunSenderPool fans ranges out across conns (one goroutine per
// connection, pulling from a shared channel so an idle worker
// immediately picks up the next range, spec §5's bounded-queue
// back-pressure) and streams each range's bytes from local.
func RunSenderPool(conns []*frame.Codec, local *fsys.FS, ranges []Range, chunkBytes int) error {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	work := make(chan Range, len(ranges))
	for _, r := range ranges {
		work <- r
	}
	close(work)

	var g errgroup.Group
	for _, c := range conns {
		c := c
		g.Go(func() error {
			for r := range work {
				if err := sendRange(c, local, r, chunkBytes); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func sendRange(c *frame.Codec, local *fsys.FS, r Range, chunkBytes int) error {
	f, err := local.Open(r.Entry.RelPath)
	if err != nil {
		return err
	}
	defer f.Close()

	start := encodeStart(startMeta{
		RelPath:   r.Entry.RelPath,
		Size:      r.Entry.Size,
		Offset:    r.Offset,
		Length:    r.Length,
		MTimeSec:  r.Entry.MTimeSec,
		MTimeNsec: r.Entry.MTimeNsec,
		Mode:      r.Entry.Mode,
	})
	if err := c.WriteFrame(protocol.FileRawStart, start); err != nil {
		return err
	}

	remaining := r.Length
	offset := r.Offset
	for remaining > 0 {
		n := int64(chunkBytes)
		if n > remaining {
			n = remaining
		}
		if err := c.WriteHeader(protocol.PFileData, uint32(n)); err != nil {
			return err
		}
		written, err := fsys.SendFile(c.Raw(), f, offset, n)
		if err != nil {
			return err
		}
		c.AddBytesWritten(uint64(written))
		offset += n
		remaining -= n
	}
	return c.WriteFrame(protocol.PFileEnd, nil)
}

// Coverage tracks which byte ranges of a file have arrived, merging
// overlapping/adjacent spans, so the receiver can tell when every
// auxiliary connection's contribution has landed (spec §4.7:
// "tracked by a byte-coverage bitmap").
type Coverage struct {
	size      int64
	intervals [][2]int64
	covered   int64
}

func NewCoverage(size int64) *Coverage {
	return &Coverage{size: size}
}

// Add records [offset, offset+length) as received and reports whether
// the file is now fully covered.
func (cv *Coverage) Add(offset, length int64) bool {
	if length <= 0 {
		return cv.covered >= cv.size
	}
	start, end := offset, offset+length
	merged := make([][2]int64, 0, len(cv.intervals)+1)
	placed := false
	for _, iv := range cv.intervals {
		switch {
		case iv[1] < start:
			merged = append(merged, iv)
		case iv[0] > end:
			if !placed {
				merged = append(merged, [2]int64{start, end})
				placed = true
			}
			merged = append(merged, iv)
		default:
			if iv[0] < start {
				start = iv[0]
			}
			if iv[1] > end {
				end = iv[1]
			}
		}
	}
	if !placed {
		merged = append(merged, [2]int64{start, end})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i][0] < merged[j][0] })
	cv.intervals = merged

	var covered int64
	for _, iv := range cv.intervals {
		covered += iv[1] - iv[0]
	}
	cv.covered = covered
	return cv.covered >= cv.size
}

// pendingFile is the shared state for one in-flight relpath, written
// to by however many worker connections carry its ranges.
type pendingFile struct {
	raf  *fsys.RandomAccessFile
	cov  *Coverage
	meta startMeta
}

// Coordinator serializes creation and completion of destination files
// across concurrently-receiving worker connections.
type Coordinator struct {
	local *fsys.FS

	mu    sync.Mutex
	files map[string]*pendingFile
}

func NewCoordinator(local *fsys.FS) *Coordinator {
	return &Coordinator{local: local, files: make(map[string]*pendingFile)}
}

// RunReceiverPool reads repeated FILE_RAW_START/PFILE_DATA*/PFILE_END
// cycles from each connection in conns until it cleanly closes
// (io.EOF), applying attributes once a file's coverage completes.
// onComplete, if non-nil, is called once per fully-covered file with
// its declared size.
func (co *Coordinator) RunReceiverPool(conns []*frame.Codec, onComplete func(relpath string, size int64)) error {
	var g errgroup.Group
	for _, c := range conns {
		c := c
		g.Go(func() error {
			for {
				done, relpath, size, err := co.receiveOne(c)
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if done && onComplete != nil {
					onComplete(relpath, size)
				}
			}
		})
	}
	return g.Wait()
}

func (co *Coordinator) receiveOne(c *frame.Codec) (complete bool, relpath string, size int64, err error) {
	f, err := c.ReadFrame()
	if err != nil {
		return false, "", 0, err
	}
	if f.Type != protocol.FileRawStart {
		return false, "", 0, bliterr.ProtocolViolation("expected FILE_RAW_START, got %s", f.Type)
	}
	m, err := decodeStart(f.Payload)
	if err != nil {
		return false, "", 0, err
	}

	pf, err := co.open(m)
	if err != nil {
		return false, "", 0, err
	}

	offset := m.Offset
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return false, m.RelPath, 0, err
		}
		switch f.Type {
		case protocol.PFileData:
			if _, err := pf.raf.WriteAt(f.Payload, offset); err != nil {
				return false, m.RelPath, 0, err
			}
			offset += int64(len(f.Payload))
		case protocol.PFileEnd:
			co.mu.Lock()
			done := pf.cov.Add(m.Offset, m.Length)
			co.mu.Unlock()
			if !done {
				return false, m.RelPath, 0, nil
			}
			if err := co.finish(m.RelPath, pf); err != nil {
				return false, m.RelPath, 0, err
			}
			return true, m.RelPath, int64(pf.meta.Size), nil
		default:
			return false, m.RelPath, 0, bliterr.ProtocolViolation("expected PFILE_DATA or PFILE_END, got %s", f.Type)
		}
	}
}

func (co *Coordinator) open(m startMeta) (*pendingFile, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if pf, ok := co.files[m.RelPath]; ok {
		return pf, nil
	}
	raf, err := co.local.CreateRandomAccess(m.RelPath, int64(m.Size))
	if err != nil {
		return nil, err
	}
	pf := &pendingFile{raf: raf, cov: NewCoverage(int64(m.Size)), meta: m}
	co.files[m.RelPath] = pf
	return pf, nil
}

func (co *Coordinator) finish(relpath string, pf *pendingFile) error {
	co.mu.Lock()
	delete(co.files, relpath)
	co.mu.Unlock()

	if err := pf.raf.Commit(); err != nil {
		return err
	}
	mtime := manifest.Entry{MTimeSec: pf.meta.MTimeSec, MTimeNsec: pf.meta.MTimeNsec}.MTime()
	readOnly := pf.meta.Flags.Has(protocol.FileFlagReadOnly)
	return co.local.SetAttr(relpath, mtime, pf.meta.Mode, readOnly)
}
