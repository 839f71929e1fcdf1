package bundler

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/manifest"
	"github.com/blit-sync/blit/protocol"
)

func TestWriteReadBundleRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(srcRoot, "a.txt"), "hello world")
	mustMkdirAll(t, filepath.Join(srcRoot, "sub"))
	mustWriteFile(t, filepath.Join(srcRoot, "sub", "b.txt"), "second file")
	if err := os.Symlink("a.txt", filepath.Join(srcRoot, "link")); err != nil {
		t.Fatal(err)
	}
	src, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	entries := []manifest.Entry{
		{RelPath: "a.txt", Size: uint64(len("hello world")), MTimeSec: mtime.Unix(), Kind: protocol.KindFile, Mode: 0644},
		{RelPath: "sub", Kind: protocol.KindDir, Mode: 0755},
		{RelPath: "sub/b.txt", Size: uint64(len("second file")), MTimeSec: mtime.Unix(), Kind: protocol.KindFile, Mode: 0644},
		{RelPath: "link", Kind: protocol.KindSymlink, LinkTarget: "a.txt"},
	}

	c1, c2 := net.Pipe()
	codec1 := frame.NewCodec(c1, protocol.DefaultMaxFrameBytes)
	codec2 := frame.NewCodec(c2, protocol.DefaultMaxFrameBytes)

	done := make(chan error, 1)
	go func() { done <- WriteBundle(codec1, src, entries, 8) }()

	dstRoot := t.TempDir()
	dst, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}
	var seen []string
	err = ReadBundle(codec2, dst, func(relpath string, size int64) {
		seen = append(seen, relpath)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 {
		t.Fatalf("onFile called for %v, want 2 regular files", seen)
	}

	gotA, err := os.ReadFile(filepath.Join(dstRoot, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(gotA) != "hello world" {
		t.Fatalf("a.txt content = %q", gotA)
	}
	gotB, err := os.ReadFile(filepath.Join(dstRoot, "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(gotB) != "second file" {
		t.Fatalf("sub/b.txt content = %q", gotB)
	}
	if fi, err := os.Stat(filepath.Join(dstRoot, "sub")); err != nil || !fi.IsDir() {
		t.Fatalf("sub is not a directory: %v, %v", fi, err)
	}
	target, err := os.Readlink(filepath.Join(dstRoot, "link"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "a.txt" {
		t.Fatalf("link target = %q, want a.txt", target)
	}

	info, err := os.Stat(filepath.Join(dstRoot, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("a.txt mtime = %v, want %v", info.ModTime(), mtime)
	}
}

func TestReadBundleRejectsMissingStartFrame(t *testing.T) {
	c1, c2 := net.Pipe()
	codec1 := frame.NewCodec(c1, protocol.DefaultMaxFrameBytes)
	codec2 := frame.NewCodec(c2, protocol.DefaultMaxFrameBytes)

	done := make(chan error, 1)
	go func() { done <- codec1.WriteFrame(protocol.TarData, []byte("x")) }()

	dstRoot := t.TempDir()
	dst, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}
	if err := ReadBundle(codec2, dst, nil); err == nil {
		t.Fatal("expected protocol violation for missing TAR_START")
	}
	<-done
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
}
