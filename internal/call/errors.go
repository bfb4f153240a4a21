package call

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAccessDenied = errors.New("media access denied")
	ErrNegotiation       = errors.New("negotiation failed")
	ErrCandidateApply    = errors.New("failed to apply candidate")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrConnectionClosed  = errors.New("connection closed by peer")

	ErrSessionClosed    = errors.New("session closed")
	ErrSessionActive    = errors.New("session already active")
	ErrMediaNotAcquired = errors.New("local media not acquired")
	ErrOfferPending     = errors.New("offer already pending")
	ErrSignalingLost    = errors.New("signaling connection lost")
)

// Error records a failed coordinator step. It unwraps to one of the
// sentinels above.
type Error struct {
	Op      string
	Room    string
	Err     error
	Details string

	// session is set on connection reports so a report that outlived its
	// session can be told apart.
	session *Session
}

func (e *Error) Error() string {
	op := e.Op
	if e.Room != "" {
		op = fmt.Sprintf("%s [%s]", e.Op, e.Room)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, room string, err error) *Error {
	return &Error{Op: op, Room: room, Err: err}
}

// wrapError tags cause with kind, keeping both matchable with errors.Is.
func wrapError(op, room string, kind, cause error) *Error {
	return &Error{Op: op, Room: room, Err: fmt.Errorf("%w: %w", kind, cause)}
}
