// Tool blit is the client-side entrypoint: mirror, copy, move, and
// verify subcommands against a local tree or a blit://host:port/path
// remote (spec §6). Flag parsing and subcommand dispatch are
// explicitly out of core scope (spec.md §1): this is the thin wiring
// layer every pack repo's cmd/ main.go is, not a CLI framework,
// grounded on teacher's cmd/gokr-rsync/rsync.go.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]

	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	emptyDirs := fs.Bool("empty-dirs", false, "carry empty directories")
	noTar := fs.Bool("no-tar", false, "disable the small-file bundler")
	checksum := fs.Bool("checksum", false, "verify same-size files by strong hash")
	highThroughput := fs.Bool("high-throughput", false, "use larger frames/chunks")
	netWorkers := fs.Int("net-workers", 4, "parallel raw-path connections (1-32)")
	netChunkMB := fs.Int("net-chunk-mb", 4, "raw-path chunk size in MiB (1-32)")

	switch sub {
	case "mirror", "copy", "move", "verify":
		if err := fs.Parse(os.Args[2:]); err != nil {
			os.Exit(2)
		}
	default:
		usage()
		os.Exit(2)
	}

	args := fs.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "blit: expected exactly one source and one destination")
		os.Exit(2)
	}
	src, dst := args[0], args[1]

	opts := session.Default()
	opts.IncludeEmptyDirs = *emptyDirs
	opts.NoTar = *noTar
	opts.ChecksumMode = *checksum
	opts.HighThroughput = *highThroughput
	opts.NetWorkers = clamp(*netWorkers, 1, 32)
	opts.NetChunkBytes = clamp(*netChunkMB, 1, 32) << 20
	opts.DeleteMirror = sub == "mirror"
	opts.VerifyOnly = sub == "verify"

	exitCode, err := run(sub, src, dst, opts)
	if err != nil {
		log.Print(err)
	}
	os.Exit(exitCode)
}

func run(sub, src, dst string, opts session.Options) (int, error) {
	srcRemote, srcHost, srcPath := parseRemote(src)
	dstRemote, dstHost, dstPath := parseRemote(dst)
	if srcRemote && dstRemote {
		return 2, fmt.Errorf("blit: at most one side may be remote")
	}

	switch {
	case dstRemote:
		local, err := fsys.New(srcPath)
		if err != nil {
			return 1, err
		}
		conn, err := net.Dial("tcp", dstHost)
		if err != nil {
			return 1, err
		}
		defer conn.Close()
		if err := sendModuleLine(conn, dstPath); err != nil {
			return 1, err
		}
		if err := session.ClientPush(conn, local, opts); err != nil {
			return 1, err
		}
		return afterCopy(sub, srcPath, nil)

	case srcRemote:
		local, err := fsys.New(dstPath)
		if err != nil {
			return 1, err
		}
		conn, err := net.Dial("tcp", srcHost)
		if err != nil {
			return 1, err
		}
		defer conn.Close()
		if err := sendModuleLine(conn, srcPath); err != nil {
			return 1, err
		}
		res, err := session.ClientPull(conn, local, opts)
		if err != nil {
			return 1, err
		}
		return afterCopy(sub, "", res)

	default:
		return 2, fmt.Errorf("blit: one of source or destination must be a blit:// URL (local-to-local copy is an external collaborator, spec.md §1)")
	}
}

// afterCopy reports a verify session's partial-success exit code
// (spec §6: exit 3) and, for `move`, clears the local source tree
// once the remote side has confirmed receipt. A verify report exists
// here only when the remote side is the source (pull direction); a
// verify with a local source leaves the report on the server, and
// that run exits 0.
func afterCopy(sub, localSrcToRemove string, res *session.Result) (int, error) {
	if sub == "verify" && res != nil && res.Report != nil {
		r := res.Report
		if len(r.Added) > 0 || len(r.Missing) > 0 || len(r.SizeDiff) > 0 || len(r.MTimeDiff) > 0 || len(r.HashDiff) > 0 {
			return 3, nil
		}
	}
	if sub == "move" && localSrcToRemove != "" {
		if err := os.RemoveAll(localSrcToRemove); err != nil {
			return 1, fmt.Errorf("move: clearing source after successful copy: %w", err)
		}
	}
	return 0, nil
}

// sendModuleLine sends the module name the daemon should serve, one
// plaintext line before the version handshake begins (spec §6
// describes the URL form but not the wire exchange that selects a
// module; grounded on the classic rsync daemon protocol's module-name
// line, sent the same way before the real handshake starts).
func sendModuleLine(conn net.Conn, modulePath string) error {
	module := modulePath
	if slash := strings.IndexByte(module, '/'); slash >= 0 {
		module = module[:slash]
	}
	_, err := conn.Write([]byte(module + "\n"))
	return err
}

// parseRemote reports whether arg is a blit://host:port/path URL and,
// if so, splits it into a dial address and a wire-relative path.
func parseRemote(arg string) (remote bool, hostport, path string) {
	const scheme = "blit://"
	if !strings.HasPrefix(arg, scheme) {
		return false, "", arg
	}
	rest := arg[len(scheme):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return true, rest, "."
	}
	return true, rest[:slash], rest[slash+1:]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: blit {mirror|copy|move|verify} [flags] <src> <dst>")
	fmt.Fprintln(os.Stderr, "       one of <src>/<dst> may be blit://host:port/path")
}
