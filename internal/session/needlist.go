package session

import (
	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/internal/frame"
	"github.com/blit-sync/blit/protocol"
)

// bucket classifies one regular (non-raw, non-delta) need for the
// sender's dispatch loop. The receiver decides bucket membership once,
// from its own Diff output and local thresholds, and carries the
// decision on the wire rather than have the sender re-derive it — the
// sender doesn't know the receiver's tuning knobs.
type bucket byte

const (
	bucketDir bucket = iota
	bucketSymlink
	bucketSmallFile
	bucketMediumFile
	bucketLargeFile // no aux/delta available: full transfer via filemover
)

type regularNeed struct {
	RelPath string
	Bucket  bucket
}

// needPlan is the receiver's classification of one Diff() result,
// carried to the sender in a single NEED_LIST frame.
type needPlan struct {
	Regular []regularNeed
	Raw     []string // large files sent via the auxiliary-connection raw path
	Delta   []string // large files sent via the delta-block path
}

func writeNeedList(c *frame.Codec, plan needPlan) error {
	var w frame.Writer
	w.PutU32(uint32(len(plan.Regular)))
	for _, n := range plan.Regular {
		w.PutString(n.RelPath)
		w.PutByte(byte(n.Bucket))
	}
	w.PutU32(uint32(len(plan.Raw)))
	for _, p := range plan.Raw {
		w.PutString(p)
	}
	w.PutU32(uint32(len(plan.Delta)))
	for _, p := range plan.Delta {
		w.PutString(p)
	}
	return c.WriteFrame(protocol.NeedList, w.Bytes())
}

func readNeedList(c *frame.Codec) (needPlan, error) {
	f, err := c.ReadFrame()
	if err != nil {
		return needPlan{}, err
	}
	if f.Type != protocol.NeedList {
		return needPlan{}, bliterr.ProtocolViolation("expected NEED_LIST, got %s", f.Type)
	}
	r := frame.NewReader(f.Payload)

	nr, err := r.U32()
	if err != nil {
		return needPlan{}, err
	}
	var plan needPlan
	plan.Regular = make([]regularNeed, nr)
	for i := range plan.Regular {
		relpath, err := r.String()
		if err != nil {
			return needPlan{}, err
		}
		b, err := r.Byte()
		if err != nil {
			return needPlan{}, err
		}
		plan.Regular[i] = regularNeed{RelPath: relpath, Bucket: bucket(b)}
	}

	nRaw, err := r.U32()
	if err != nil {
		return needPlan{}, err
	}
	plan.Raw = make([]string, nRaw)
	for i := range plan.Raw {
		if plan.Raw[i], err = r.String(); err != nil {
			return needPlan{}, err
		}
	}

	nDelta, err := r.U32()
	if err != nil {
		return needPlan{}, err
	}
	plan.Delta = make([]string, nDelta)
	for i := range plan.Delta {
		if plan.Delta[i], err = r.String(); err != nil {
			return needPlan{}, err
		}
	}

	return plan, nil
}
