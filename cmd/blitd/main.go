// Tool blitd is the daemon subcommand's server: it listens for TCP
// connections, reads the client's requested module name, restricts
// the process's filesystem access to the configured module roots,
// drops root privileges, and serves each connection via
// internal/session (spec §6). Grounded on teacher's maincmd daemon
// path (internal/maincmd/maincmd.go) and restrictToModules
// (rsyncd/restrictmodules.go).
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/blit-sync/blit/internal/blitconfig"
	"github.com/blit-sync/blit/internal/blitlog"
	"github.com/blit-sync/blit/internal/fsys"
	"github.com/blit-sync/blit/internal/privdrop"
	"github.com/blit-sync/blit/internal/restrict"
	"github.com/blit-sync/blit/internal/session"
)

func main() {
	listen := flag.String("listen", ":8730", "address to listen on")
	configPath := flag.String("config", "", "path to a blitconfig YAML file")
	noRestrict := flag.Bool("no-restrict", false, "skip Landlock filesystem sandboxing")
	flag.Parse()

	logger := blitlog.New(os.Stderr, "blitd")

	cfg := blitconfig.Default()
	if *configPath != "" {
		loaded, err := blitconfig.FromFile(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if len(cfg.Modules) == 0 {
		log.Fatal("blitd: no modules configured (-config file must declare at least one module)")
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal(err)
	}
	logger.Printf("listening on %s, serving %d module(s)", ln.Addr(), len(cfg.Modules))

	if !*noRestrict {
		if err := restrict.ToModules(cfg.Modules); err != nil {
			log.Fatal(err)
		}
	}
	if err := privdrop.Drop(logger); err != nil {
		log.Fatal(err)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Printf("accept: %v", err)
			continue
		}
		go handleConn(conn, cfg, logger)
	}
}

func handleConn(conn net.Conn, cfg blitconfig.Config, logger *blitlog.Logger) {
	defer conn.Close()

	moduleName, err := readModuleLine(conn)
	if err != nil {
		logger.Printf("reading module name: %v", err)
		return
	}
	mod, ok := cfg.ModuleByName(moduleName)
	if !ok {
		logger.Printf("unknown module %q requested by %s", moduleName, conn.RemoteAddr())
		return
	}

	local, err := fsys.New(mod.Path)
	if err != nil {
		logger.Printf("module %q: %v", mod.Name, err)
		return
	}

	opts := session.Default()
	opts.MaxFrameBytes = cfg.MaxFrameBytes
	opts.NetWorkers = cfg.NetWorkers
	opts.NetChunkBytes = cfg.NetChunkBytes
	opts.LargeThreshold = cfg.LargeThreshold
	opts.BundleThreshold = cfg.BundleThreshold
	opts.SparseThreshold = cfg.SparseThreshold
	opts.BlockSize = cfg.BlockSize
	opts.HighThroughput = cfg.HighThroughput
	opts.ChecksumMode = cfg.Checksum
	opts.Logger = logger

	if mod.Writable {
		if err := blitconfig.RunPreHook(mod); err != nil {
			logger.Printf("module %q: pre-hook: %v", mod.Name, err)
			return
		}
	}

	res, err := session.ServeConn(conn, local, opts)
	if err != nil {
		logger.Printf("module %q: session: %v", mod.Name, err)
		return
	}

	if mod.Writable {
		if err := blitconfig.RunPostHook(mod); err != nil {
			logger.Printf("module %q: post-hook: %v", mod.Name, err)
		}
	}

	if res != nil {
		logger.Debugf("module %q: %+v", mod.Name, res.Stats)
	}
}

// readModuleLine reads a single newline-terminated module name,
// one byte at a time, so no buffered-but-unread bytes are stranded
// ahead of the version handshake that follows on the same conn.
func readModuleLine(conn net.Conn) (string, error) {
	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := conn.Read(b)
		if n > 0 {
			if b[0] == '\n' {
				return string(buf), nil
			}
			buf = append(buf, b[0])
		}
		if err != nil {
			return "", err
		}
		if len(buf) > 256 {
			return "", fmt.Errorf("module name too long")
		}
	}
}
