package session

import (
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blit-sync/blit/internal/fsys"
)

func testOptions() Options {
	o := Default()
	o.BundleThreshold = 1024   // anything under 1KiB bundles
	o.LargeThreshold = 1 << 20 // anything under 1MiB is "medium", streamed
	o.DeleteMirror = true
	return o
}

// TestPushEndToEnd exercises a full push session (local source, remote
// destination) over net.Pipe: dirs, a symlink, a bundled small file, a
// streamed medium file, and mirror-deleting a stale destination entry.
func TestPushEndToEnd(t *testing.T) {
	srcRoot := t.TempDir()
	mustMkdirAll(t, filepath.Join(srcRoot, "sub"))
	mustWriteFile(t, filepath.Join(srcRoot, "sub", "small.txt"), "hi")
	mustWriteFile(t, filepath.Join(srcRoot, "medium.bin"), string(make([]byte, 4096)))
	if err := os.Symlink("medium.bin", filepath.Join(srcRoot, "link")); err != nil {
		t.Fatal(err)
	}

	dstRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(dstRoot, "stale.txt"), "remove me")

	srcFS, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}
	dstFS, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}

	clientConn, serverConn := net.Pipe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ClientPush(clientConn, srcFS, testOptions())
	}()

	res, err := ServeConn(serverConn, dstFS, testOptions())
	if err != nil {
		t.Fatalf("ServeConn: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("ClientPush: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dstRoot, "sub", "small.txt")); err != nil {
		t.Errorf("small.txt missing: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dstRoot, "sub", "small.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi" {
		t.Errorf("small.txt content = %q, want %q", got, "hi")
	}
	if info, err := os.Stat(filepath.Join(dstRoot, "medium.bin")); err != nil {
		t.Errorf("medium.bin missing: %v", err)
	} else if info.Size() != 4096 {
		t.Errorf("medium.bin size = %d, want 4096", info.Size())
	}
	if target, err := os.Readlink(filepath.Join(dstRoot, "link")); err != nil {
		t.Errorf("link missing: %v", err)
	} else if target != "medium.bin" {
		t.Errorf("link target = %q, want medium.bin", target)
	}
	if _, err := os.Stat(filepath.Join(dstRoot, "stale.txt")); !os.IsNotExist(err) {
		t.Errorf("stale.txt should have been mirror-deleted, stat err = %v", err)
	}

	sort.Strings(res.Deleted)
	if diff := cmp.Diff([]string{"stale.txt"}, res.Deleted); diff != "" {
		t.Errorf("Deleted mismatch (-want +got):\n%s", diff)
	}
	if res.Stats.FilesReceived == 0 {
		t.Errorf("expected non-zero FilesReceived in stats snapshot")
	}
}

// TestPushCreatesEmptyDirWithDeferredAttrs exercises the MKDIR +
// deferred SET_ATTR round (spec §4.4) for a directory with no
// descendants, which only travels the wire when IncludeEmptyDirs is
// set (fsys.Walk otherwise never emits non-empty dirs as entries,
// relying on MkdirAll-on-create instead).
func TestPushCreatesEmptyDirWithDeferredAttrs(t *testing.T) {
	srcRoot := t.TempDir()
	mustMkdirAll(t, filepath.Join(srcRoot, "empty"))

	dstRoot := t.TempDir()

	srcFS, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}
	dstFS, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}

	opts := testOptions()
	opts.IncludeEmptyDirs = true

	clientConn, serverConn := net.Pipe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ClientPush(clientConn, srcFS, opts)
	}()

	if _, err := ServeConn(serverConn, dstFS, opts); err != nil {
		t.Fatalf("ServeConn: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("ClientPush: %v", err)
	}

	info, err := os.Stat(filepath.Join(dstRoot, "empty"))
	if err != nil {
		t.Fatalf("empty dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("empty is not a directory")
	}
	srcInfo, err := os.Stat(filepath.Join(srcRoot, "empty"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(srcInfo.ModTime()) {
		t.Errorf("empty mtime = %v, want %v (deferred SET_ATTR)", info.ModTime(), srcInfo.ModTime())
	}
}

// TestPullEndToEnd mirrors TestPushEndToEnd but with the client on the
// receiving side (a `blit pull`-shaped session).
func TestPullEndToEnd(t *testing.T) {
	srcRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(srcRoot, "a.txt"), "contents")

	dstRoot := t.TempDir()

	srcFS, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}
	dstFS, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}

	clientConn, serverConn := net.Pipe()

	resCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := ClientPull(clientConn, dstFS, testOptions())
		if err != nil {
			errCh <- err
			return
		}
		resCh <- res
	}()

	if _, err := ServeConn(serverConn, srcFS, testOptions()); err != nil {
		t.Fatalf("ServeConn: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("ClientPull: %v", err)
	case res := <-resCh:
		if res.Stats.FilesReceived == 0 {
			t.Errorf("expected non-zero FilesReceived in stats snapshot")
		}
	}

	got, err := os.ReadFile(filepath.Join(dstRoot, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "contents" {
		t.Errorf("a.txt content = %q, want %q", got, "contents")
	}
}

// TestVerifyOnlyReportsDrift exercises the read-only verify sub-mode
// (spec §4.11): no writes happen, just a drift report.
func TestVerifyOnlyReportsDrift(t *testing.T) {
	srcRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(srcRoot, "same.txt"), "v1")
	mustWriteFile(t, filepath.Join(srcRoot, "onlysrc.txt"), "only on source")

	dstRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(dstRoot, "same.txt"), "v1")
	mustWriteFile(t, filepath.Join(dstRoot, "onlydst.txt"), "only on dest")

	srcFS, err := fsys.New(srcRoot)
	if err != nil {
		t.Fatal(err)
	}
	dstFS, err := fsys.New(dstRoot)
	if err != nil {
		t.Fatal(err)
	}

	opts := testOptions()
	opts.VerifyOnly = true
	opts.DeleteMirror = false

	clientConn, serverConn := net.Pipe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ClientPush(clientConn, srcFS, opts)
	}()

	res, err := ServeConn(serverConn, dstFS, opts)
	if err != nil {
		t.Fatalf("ServeConn: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("ClientPush: %v", err)
	}

	if res.Report == nil {
		t.Fatal("expected a VerifyReport")
	}
	if diff := cmp.Diff([]string{"onlysrc.txt"}, res.Report.Added); diff != "" {
		t.Errorf("Added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"onlydst.txt"}, res.Report.Missing); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dstRoot, "onlysrc.txt")); !os.IsNotExist(err) {
		t.Errorf("verify-only must not write files, but onlysrc.txt exists")
	}
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
