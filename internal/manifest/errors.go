package manifest

import (
	"github.com/blit-sync/blit/internal/bliterr"
	"github.com/blit-sync/blit/protocol"
)

func protocolViolation(want, got protocol.FrameType) error {
	return bliterr.ProtocolViolation("expected %s, got %s", want, got)
}
