package fsys

import "bytes"

// SparseWriter sequentially appends to a random-access destination,
// skipping runs of >= threshold zero bytes via seek (advancing the
// logical offset without writing) instead of writing zeroes (spec
// §4.6). It expects destination files to start pre-sized (sparse
// files read back as zero outside any written range).
type SparseWriter struct {
	dst       *RandomAccessFile
	threshold int
	offset    int64
}

func NewSparseWriter(dst *RandomAccessFile, threshold int) *SparseWriter {
	if threshold <= 0 {
		threshold = 1 << 62 // effectively disabled
	}
	return &SparseWriter{dst: dst, threshold: threshold}
}

// Write scans data for long zero runs and only issues WriteAt calls
// for the non-zero spans, advancing the logical offset across holes.
func (w *SparseWriter) Write(data []byte) (int, error) {
	n := len(data)
	i := 0
	for i < len(data) {
		if data[i] == 0 {
			runEnd := i
			for runEnd < len(data) && data[runEnd] == 0 {
				runEnd++
			}
			run := runEnd - i
			if run >= w.threshold {
				w.offset += int64(run)
				i = runEnd
				continue
			}
			// Short zero run: write it out verbatim, it's not worth a hole.
			if _, err := w.dst.WriteAt(data[i:runEnd], w.offset); err != nil {
				return i, err
			}
			w.offset += int64(run)
			i = runEnd
			continue
		}
		spanEnd := bytes.IndexByte(data[i:], 0)
		if spanEnd == -1 {
			spanEnd = len(data)
		} else {
			spanEnd += i
		}
		if _, err := w.dst.WriteAt(data[i:spanEnd], w.offset); err != nil {
			return i, err
		}
		w.offset += int64(spanEnd - i)
		i = spanEnd
	}
	return n, nil
}

// Offset returns the current logical write position.
func (w *SparseWriter) Offset() int64 { return w.offset }
