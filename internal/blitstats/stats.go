// Package blitstats holds the per-session counters of spec §3 and §8:
// files/bytes sent and received, elapsed time, with bundled files
// counted once regardless of transfer mode. Grounded on teacher's
// rsyncstats.TransferStats (referenced from internal/receiver/do.go's
// report()), backed here by sync/atomic since counters are written
// concurrently from worker goroutines (spec §5).
package blitstats

import (
	"sync/atomic"
	"time"
)

// Counters accumulates one session's transfer totals. The zero value
// is ready to use.
type Counters struct {
	filesSent     atomic.Int64
	filesReceived atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	filesDeleted  atomic.Int64
	start         time.Time
}

// Start records the session start time. Call once, before any
// transfer work begins.
func (c *Counters) Start() {
	c.start = time.Now()
}

func (c *Counters) AddFileSent(bytes int64) {
	c.filesSent.Add(1)
	c.bytesSent.Add(bytes)
}

func (c *Counters) AddFileReceived(bytes int64) {
	c.filesReceived.Add(1)
	c.bytesReceived.Add(bytes)
}

func (c *Counters) AddFileDeleted() {
	c.filesDeleted.Add(1)
}

// Snapshot is an immutable point-in-time read of Counters, suitable
// for logging or returning from a completed session.
type Snapshot struct {
	FilesSent     int64
	FilesReceived int64
	BytesSent     int64
	BytesReceived int64
	FilesDeleted  int64
	Elapsed       time.Duration
}

func (c *Counters) Snapshot() Snapshot {
	var elapsed time.Duration
	if !c.start.IsZero() {
		elapsed = time.Since(c.start)
	}
	return Snapshot{
		FilesSent:     c.filesSent.Load(),
		FilesReceived: c.filesReceived.Load(),
		BytesSent:     c.bytesSent.Load(),
		BytesReceived: c.bytesReceived.Load(),
		FilesDeleted:  c.filesDeleted.Load(),
		Elapsed:       elapsed,
	}
}
