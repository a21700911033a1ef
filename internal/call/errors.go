package call

import (
	"errors"
	"fmt"
)

// Media acquisition failures. MediaSource implementations wrap their
// platform errors with these so the session can classify them.
var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNoDevice         = errors.New("no microphone found")
	ErrDeviceBusy       = errors.New("microphone busy or unreadable")
)

var (
	ErrAlreadyStarted = errors.New("call already started")
	ErrSessionClosed  = errors.New("call session closed")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindNoDevice
	KindDeviceBusy
	KindConnectionFailure
	KindNegotiationTimeout
	KindSignalingFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNoDevice:
		return "no_device"
	case KindDeviceBusy:
		return "device_busy"
	case KindConnectionFailure:
		return "connection_failure"
	case KindNegotiationTimeout:
		return "negotiation_timeout"
	case KindSignalingFailure:
		return "signaling_failure"
	default:
		return "unknown"
	}
}

// CallError is the reason a session ended in StateFailed.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newCallError(kind ErrorKind, err error) *CallError {
	ce := &CallError{Kind: kind}
	if err != nil {
		ce.Message = err.Error()
	}
	return ce
}

// classifyMedia maps an acquisition error onto its error kind.
func classifyMedia(err error) *CallError {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return newCallError(KindPermissionDenied, err)
	case errors.Is(err, ErrNoDevice):
		return newCallError(KindNoDevice, err)
	case errors.Is(err, ErrDeviceBusy):
		return newCallError(KindDeviceBusy, err)
	default:
		return newCallError(KindUnknown, err)
	}
}

// statusFor is the user-facing text for a failure.
func statusFor(e *CallError) string {
	switch e.Kind {
	case KindPermissionDenied:
		return "permission denied"
	case KindNoDevice:
		return "no device"
	case KindDeviceBusy:
		return "device busy"
	case KindNegotiationTimeout:
		return "failed: no answer from peer"
	default:
		return "failed: " + e.Error()
	}
}
