// Package bliterr enumerates the session error kinds of spec §7. Every
// kind shares the one Error type and is named by its Kind field, so
// callers can switch on Kind to tell what went wrong without parsing
// strings, the way teacher's call sites check os.IsNotExist rather
// than matching error text.
package bliterr

import "fmt"

// Kind names one of the failure modes from spec §7.
type Kind string

const (
	KindVersionMismatch Kind = "VersionMismatch"
	KindProtocolViolation Kind = "ProtocolViolation"
	KindPathViolation     Kind = "PathViolation"
	KindFrameTooLarge     Kind = "FrameTooLarge"
	KindIOTimeout         Kind = "IoTimeout"
	KindIOTransient       Kind = "IoTransient"
	KindIOPermanent       Kind = "IoPermanent"
	KindDeltaMismatch     Kind = "DeltaMismatch"
	KindCancelled         Kind = "CancelledBySession"
)

// Error is the common shape for every session error kind. Most are
// fatal (the session emits an ERROR frame and closes); DeltaMismatch
// is the one recoverable kind (spec §7: treat block as literal).
type Error struct {
	Kind    Kind
	Message string
	// Path is set for PathViolation and DeltaMismatch. It is stored as
	// given; Error() prints it %q-quoted.
	Path string
	// LocalVersion/PeerVersion are set for VersionMismatch.
	LocalVersion, PeerVersion byte
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%q)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Fatal reports whether this error kind always terminates the
// session. Only DeltaMismatch is recovered locally (spec §7).
func (e *Error) Fatal() bool {
	return e.Kind != KindDeltaMismatch
}

func VersionMismatch(local, peer byte) *Error {
	return &Error{
		Kind:         KindVersionMismatch,
		Message:      fmt.Sprintf("local version %d does not match peer version %d", local, peer),
		LocalVersion: local,
		PeerVersion:  peer,
	}
}

func ProtocolViolation(format string, args ...any) *Error {
	return &Error{Kind: KindProtocolViolation, Message: fmt.Sprintf(format, args...)}
}

func PathViolation(path, reason string) *Error {
	return &Error{Kind: KindPathViolation, Message: reason, Path: path}
}

func FrameTooLarge(got, max uint32) *Error {
	return &Error{Kind: KindFrameTooLarge, Message: fmt.Sprintf("frame length %d exceeds maximum %d", got, max)}
}

func IOTimeout(op string) *Error {
	return &Error{Kind: KindIOTimeout, Message: fmt.Sprintf("deadline exceeded during %s", op)}
}

func IOTransient(op string, cause error) *Error {
	return &Error{Kind: KindIOTransient, Message: fmt.Sprintf("%s: %v", op, cause)}
}

func IOPermanent(op string, cause error) *Error {
	return &Error{Kind: KindIOPermanent, Message: fmt.Sprintf("%s: %v", op, cause)}
}

func DeltaMismatch(path string, blockIndex int32) *Error {
	return &Error{
		Kind:    KindDeltaMismatch,
		Message: fmt.Sprintf("strong hash mismatch for block %d, falling back to literal", blockIndex),
		Path:    path,
	}
}

func Cancelled(reason string) *Error {
	return &Error{Kind: KindCancelled, Message: reason}
}
