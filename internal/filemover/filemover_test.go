package filemover

import (
	"bytes"
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

func codecPair() (*frame.Codec, *frame.Codec) {
	c1, c2 := net.Pipe()
	return frame.NewCodec(c1, protocol.DefaultMaxFrameBytes), frame.NewCodec(c2, protocol.DefaultMaxFrameBytes)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	content := bytes.Repeat([]byte("abcdefgh"), 1000) // 8000 bytes, forces multiple chunks
	if err := os.WriteFile(filepath.Join(srcRoot, "big.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}
	src, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	e := manifest.Entry{RelPath: "big.bin", Size: uint64(len(content)), MTimeSec: mtime.Unix(), Kind: protocol.KindFile, Mode: 0640}

	c1, c2 := codecPair()
	done := make(chan error, 1)
	go func() { done <- Send(c1, src, e, 1000) }()

	dstRoot := t.TempDir()
	dst, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}
	relpath, size, err := Receive(c2, dst, 64<<10)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if relpath != "big.bin" {
		t.Fatalf("relpath = %q, want big.bin", relpath)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}

	got, err := os.ReadFile(filepath.Join(dstRoot, "big.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch: got %d bytes, want %d", len(got), len(content))
	}

	info, err := os.Stat(filepath.Join(dstRoot, "big.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}
}

func TestReceiveSparseHolePreservation(t *testing.T) {
	content := make([]byte, 200*1024)
	copy(content[:10], []byte("headbytes!"))
	copy(content[190*1024:], []byte("tailbytes!"))

	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "sparse.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}
	src, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}
	e := manifest.Entry{RelPath: "sparse.bin", Size: uint64(len(content)), Kind: protocol.KindFile, Mode: 0644}

	c1, c2 := codecPair()
	done := make(chan error, 1)
	go func() { done <- Send(c1, src, e, 1<<20) }()

	dstRoot := t.TempDir()
	dst, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Receive(c2, dst, 64<<10); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dstRoot, "sparse.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("sparse round trip did not reproduce original content")
	}
}

func TestReceiveRejectsMissingStartFrame(t *testing.T) {
	c1, c2 := codecPair()
	done := make(chan error, 1)
	go func() { done <- c1.WriteFrame(protocol.FileData, []byte("x")) }()

	dstRoot := t.TempDir()
	dst, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Receive(c2, dst, 64<<10); err == nil {
		t.Fatal("expected protocol violation for missing FILE_START")
	}
	<-done
}
