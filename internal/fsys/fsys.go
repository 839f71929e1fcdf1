// Package fsys is the filesystem adapter spec §1 asks the core to
// consume: enumerate, stat, read, write, create directories and
// symlinks, apply timestamps and mode bits, and delete entries,
// rooted under one absolute directory and hardened by pathsafety.
// Grounded on teacher's scattered os/renameio calls across
// internal/receiver (rt.DestRoot.Open, newPendingFile,
// CloseAtomicallyReplace, setUid's os.Lchown), centralized here into
// one adapter so internal/session never touches os directly.
package fsys

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"

	"github.com/blit-sync/blit/internal/pathsafety"
)

// Entry is one filesystem entry as seen by Walk, independent of the
// wire Manifest entry shape (manifest.Entry derives from this).
type Entry struct {
	// RelPath is forward-slash, relative to Root.
	RelPath string
	Kind    Kind
	Size    int64
	ModTime time.Time
	Mode    uint32 // POSIX permission bits; 0 on non-unix senders (spec §3)
	// LinkTarget is set only for Kind == KindSymlink.
	LinkTarget string
}

type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// FS is a filesystem rooted at Root. Every method's relpath argument
// is a wire-format (forward-slash) path validated via pathsafety
// before touching disk.
type FS struct {
	Root string
}

func New(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &FS{Root: filepath.Clean(abs)}, nil
}

func (f *FS) resolve(relpath string) (string, error) {
	return pathsafety.Resolve(f.Root, relpath)
}

// WalkFunc is invoked once per entry found by Walk, in lexicographic
// order within each directory (spec §4.4: "byte-for-byte reproducible
// manifests").
type WalkFunc func(Entry) error

// ExcludeFunc reports whether a wire-form (forward-slash) relative
// path should be pruned during the walk (spec §4.4 filters: xf file
// pattern, xd directory pattern, pruned not descended).
type ExcludeFunc func(relpath string, isDir bool) bool

// Walk enumerates the tree rooted at f.Root in depth-first,
// lexicographic order, calling fn for files, symlinks, and (if
// includeEmptyDirs) directories.
func (f *FS) Walk(includeEmptyDirs bool, exclude ExcludeFunc, fn WalkFunc) error {
	return f.walkDir(".", includeEmptyDirs, exclude, fn, true)
}

func (f *FS) walkDir(relDir string, includeEmptyDirs bool, exclude ExcludeFunc, fn WalkFunc, isRoot bool) error {
	nativeDir := filepath.Join(f.Root, filepath.FromSlash(relDir))
	dirEntries, err := os.ReadDir(nativeDir)
	if err != nil {
		return err
	}
	sort.Slice(dirEntries, func(i, j int) bool {
		return dirEntries[i].Name() < dirEntries[j].Name()
	})

	if !isRoot && includeEmptyDirs {
		info, err := os.Lstat(nativeDir)
		if err != nil {
			return err
		}
		if err := fn(Entry{
			RelPath: pathsafety.ToWire(relDir),
			Kind:    KindDir,
			ModTime: info.ModTime(),
			Mode:    uint32(info.Mode().Perm()),
		}); err != nil {
			return err
		}
	}

	for _, de := range dirEntries {
		relChild := de.Name()
		if relDir != "." {
			relChild = relDir + "/" + de.Name()
		}
		nativeChild := filepath.Join(f.Root, filepath.FromSlash(relChild))

		info, err := os.Lstat(nativeChild)
		if err != nil {
			return err
		}

		if exclude != nil && exclude(relChild, info.IsDir()) {
			continue // pruned, not descended (spec §4.4)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(nativeChild)
			if err != nil {
				return err
			}
			if err := fn(Entry{
				RelPath:    pathsafety.ToWire(relChild),
				Kind:       KindSymlink,
				ModTime:    info.ModTime(),
				Mode:       uint32(info.Mode().Perm()),
				LinkTarget: target,
			}); err != nil {
				return err
			}
		case info.IsDir():
			if err := f.walkDir(relChild, includeEmptyDirs, exclude, fn, false); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := fn(Entry{
				RelPath: pathsafety.ToWire(relChild),
				Kind:    KindFile,
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Mode:    uint32(info.Mode().Perm()),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lstat returns the entry for a single relpath without recursing,
// used by the receiver-side diff (spec §4.4) to test "missing
// locally".
func (f *FS) Lstat(relpath string) (Entry, error) {
	native, err := f.resolve(relpath)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Lstat(native)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		RelPath: relpath,
		ModTime: info.ModTime(),
		Mode:    uint32(info.Mode().Perm()),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		e.Kind = KindSymlink
		target, err := os.Readlink(native)
		if err != nil {
			return Entry{}, err
		}
		e.LinkTarget = target
	case info.IsDir():
		e.Kind = KindDir
	default:
		e.Kind = KindFile
		e.Size = info.Size()
	}
	return e, nil
}

// Exists reports whether relpath exists, masking fs.ErrNotExist.
func (f *FS) Exists(relpath string) (bool, error) {
	_, err := f.Lstat(relpath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Open opens relpath for reading.
func (f *FS) Open(relpath string) (*os.File, error) {
	native, err := f.resolve(relpath)
	if err != nil {
		return nil, err
	}
	return os.Open(native)
}

// Mkdir creates relpath (and any missing parents) with mode.
func (f *FS) Mkdir(relpath string, mode uint32) error {
	native, err := f.resolve(relpath)
	if err != nil {
		return err
	}
	return os.MkdirAll(native, fs.FileMode(mode))
}

// Symlink atomically creates relpath -> target, using renameio the
// way teacher's internal/receiver/generatorsymlink.go does.
func (f *FS) Symlink(relpath, target string) error {
	native, err := f.resolve(relpath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(native), 0755); err != nil {
		return err
	}
	return renameio.Symlink(target, native)
}

// Remove deletes relpath (a file, empty dir, or symlink).
func (f *FS) Remove(relpath string) error {
	native, err := f.resolve(relpath)
	if err != nil {
		return err
	}
	return os.Remove(native)
}

// ClearReadOnly clears the windows read-only attribute on relpath (a
// no-op elsewhere), used by mirror-delete before unlink (spec §4.10:
// "clear read-only attribute before unlink").
func (f *FS) ClearReadOnly(relpath string) error {
	native, err := f.resolve(relpath)
	if err != nil {
		return err
	}
	return applyReadOnly(native, false)
}

// SetAttr applies mtime and POSIX mode bits to relpath (spec §4.6).
// On windows, applyReadOnly additionally toggles the read-only
// attribute from the wire's read-only flag bit.
func (f *FS) SetAttr(relpath string, mtime time.Time, mode uint32, readOnly bool) error {
	native, err := f.resolve(relpath)
	if err != nil {
		return err
	}
	if err := os.Chtimes(native, mtime, mtime); err != nil {
		return err
	}
	if mode != 0 {
		if err := os.Chmod(native, fs.FileMode(mode)); err != nil {
			return err
		}
	}
	return applyReadOnly(native, readOnly)
}

// PendingFile is a sequentially-written file that is only linked into
// the tree once fully received, the same atomic-commit shape as
// teacher's newPendingFile/CloseAtomicallyReplace in
// internal/receiver/receiver.go. Used by the bundler (spec §4.5),
// which writes each file in order.
type PendingFile struct {
	t *renameio.PendingFile
}

// Create opens a new pending file for relpath. Callers must call
// either Commit (on success) or Cleanup (on any failure path).
func (f *FS) Create(relpath string) (*PendingFile, error) {
	native, err := f.resolve(relpath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(native), 0755); err != nil {
		return nil, err
	}
	t, err := renameio.NewPendingFile(native, renameio.WithStaticPermissions(0644))
	if err != nil {
		return nil, err
	}
	return &PendingFile{t: t}, nil
}

func (p *PendingFile) Write(b []byte) (int, error) { return p.t.Write(b) }

func (p *PendingFile) Commit() error { return p.t.CloseAtomicallyReplace() }

func (p *PendingFile) Cleanup() error { return p.t.Cleanup() }

// RandomAccessFile is a file written out of order at arbitrary
// offsets: the parallel raw path (spec §4.7, many auxiliary
// connections writing disjoint ranges) and the delta path (spec §4.8,
// seek+write apply-in-place) both need WriteAt, which renameio's
// sequential PendingFile does not offer. It is committed atomically
// via its own temp-file-plus-rename, the portable equivalent of
// renameio's approach.
type RandomAccessFile struct {
	tmp    *os.File
	tmpPath string
	final  string
}

// CreateRandomAccess opens a temp file in the same directory as
// relpath's resolved path (so the final rename stays on one
// filesystem) and truncates it to size.
func (f *FS) CreateRandomAccess(relpath string, size int64) (*RandomAccessFile, error) {
	native, err := f.resolve(relpath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(native)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, ".blit-tmp-*")
	if err != nil {
		return nil, err
	}
	if size > 0 {
		if err := tmp.Truncate(size); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, err
		}
	}
	return &RandomAccessFile{tmp: tmp, tmpPath: tmp.Name(), final: native}, nil
}

func (r *RandomAccessFile) WriteAt(b []byte, off int64) (int, error) {
	return r.tmp.WriteAt(b, off)
}

// File exposes the underlying *os.File for sparse-hole preservation
// (spec §4.6: advance by seek rather than write for zero runs).
func (r *RandomAccessFile) File() *os.File { return r.tmp }

func (r *RandomAccessFile) Commit() error {
	if err := r.tmp.Sync(); err != nil {
		r.Cleanup()
		return err
	}
	if err := r.tmp.Close(); err != nil {
		os.Remove(r.tmpPath)
		return err
	}
	return os.Rename(r.tmpPath, r.final)
}

func (r *RandomAccessFile) Cleanup() error {
	r.tmp.Close()
	return os.Remove(r.tmpPath)
}
