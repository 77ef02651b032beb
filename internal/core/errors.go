package core

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrAuth               = errors.New("authorization rejected")
	ErrMediaAccess        = errors.New("media device access failed")
	ErrProvider           = errors.New("provider failure")
	ErrReconnectExhausted = errors.New("provider reconnect exhausted")
	ErrTrackNeverReady    = errors.New("track media never became ready")
	ErrQualityDegraded    = errors.New("connection quality degraded")

	ErrEmptyToken    = errors.New("empty token")
	ErrSessionActive = errors.New("session already active")
	ErrDisconnected  = errors.New("session disconnected")
	ErrUnsupported   = errors.New("not supported by provider")
)

var kinds = []error{
	ErrAuth,
	ErrMediaAccess,
	ErrProvider,
	ErrReconnectExhausted,
	ErrTrackNeverReady,
	ErrQualityDegraded,
}

// Error carries a taxonomy kind together with the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the taxonomy kind of err, or nil if err carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Fatal reports whether an error of this kind ends the session.
func Fatal(err error) bool {
	switch KindOf(err) {
	case ErrTrackNeverReady, ErrQualityDegraded:
		return false
	case nil:
		return err != nil
	default:
		return true
	}
}
