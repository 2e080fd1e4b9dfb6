package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	KindTimeout ErrorKind = "timeout"
	KindHTTP    ErrorKind = "http"
	KindUnknown ErrorKind = "unknown"
)

// Error is the classified failure of one execution-service call. Exactly
// three kinds exist; callers branch on Kind, never on error text.
type Error struct {
	Kind   ErrorKind
	Op     string
	Status int    // set when Kind == KindHTTP
	Body   string // response excerpt, when Kind == KindHTTP
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("bridge %s: timed out", e.Op)
	case KindHTTP:
		return fmt.Sprintf("bridge %s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("bridge %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a bridge timeout. A timed-out write means
// the remote state is indeterminate, not failed.
func IsTimeout(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindTimeout
}

func classify(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

func httpError(op string, status int, body []byte) *Error {
	excerpt := string(body)
	if len(excerpt) > 256 {
		excerpt = excerpt[:256]
	}
	return &Error{Kind: KindHTTP, Op: op, Status: status, Body: excerpt}
}
