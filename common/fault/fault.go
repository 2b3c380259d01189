package fault

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrIO        = errors.New("io error")
	ErrParse     = errors.New("parse error")
	ErrNetwork   = errors.New("network error")
	ErrProtocol  = errors.New("protocol error")
	ErrTimeout   = errors.New("timeout")
	ErrIntegrity = errors.New("integrity error")
)

type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Wrap tags err with kind. Both stay reachable through errors.Is.
func Wrap(kind error, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if len(format) == 0 {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, fmt.Sprintf(format, args...), err)
}

func newf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func IO(format string, args ...any) error {
	return newf(ErrIO, format, args...)
}

func Parse(format string, args ...any) error {
	return newf(ErrParse, format, args...)
}

func Network(format string, args ...any) error {
	return newf(ErrNetwork, format, args...)
}

func Protocol(format string, args ...any) error {
	return newf(ErrProtocol, format, args...)
}

func Timeout(format string, args ...any) error {
	return newf(ErrTimeout, format, args...)
}

func Integrity(format string, args ...any) error {
	return newf(ErrIntegrity, format, args...)
}

// Classify decides what a peer-level caller should do with err.
// Cancellation and malformed local input abort; anything that a different
// peer might not reproduce is retryable.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled):
		return Fatal
	case errors.Is(err, ErrParse):
		return Fatal
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrProtocol),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrIntegrity),
		errors.Is(err, ErrIO),
		errors.Is(err, context.DeadlineExceeded):
		return Retryable
	default:
		return Fatal
	}
}
