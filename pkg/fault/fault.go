// Package fault defines the error taxonomy of the trust engine.
//
// Every user-visible failure carries a Kind from the closed taxonomy plus,
// where a numeric limit triggered it (kernel denial, ceiling breach), the
// values involved, so audit review never needs a separate forensic query.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// NotFound: a referenced entity does not exist.
	NotFound Kind = "not_found"
	// Conflict: duplicate creation, double vote, double pause.
	Conflict Kind = "conflict"
	// Locked: mutation attempted after an organization's lock boundary.
	Locked Kind = "locked"
	// Frozen: mutation attempted on a frozen context.
	Frozen Kind = "frozen"
	// Forbidden: kernel-layer hard denial. Never retryable, never overridable.
	Forbidden Kind = "forbidden"
	// InvalidOverride: expired, revoked, or incomplete dual-control override.
	InvalidOverride Kind = "invalid_override"
	// Expired: a deadline or TTL passed.
	Expired Kind = "expired"
)

// Fault is a classified domain error.
type Fault struct {
	Kind   Kind
	Msg    string
	Values map[string]int // numeric triggers, e.g. {"score": 720, "ceiling": 699}
	cause  error
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.cause }

// New creates a Fault of the given kind.
func New(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a Fault that wraps an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: err}
}

// WithValues attaches the numeric values that triggered the failure.
func (f *Fault) WithValues(values map[string]int) *Fault {
	f.Values = values
	return f
}

// KindOf extracts the Kind from an error chain, or "" if the chain
// contains no Fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// ExitCode maps a failure to the administrative surface's exit codes.
// 0 success, and per taxonomy: not_found=2, conflict=3, forbidden=4,
// locked/frozen=5, invalid_override=6, expired=7, anything else=1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case NotFound:
		return 2
	case Conflict:
		return 3
	case Forbidden:
		return 4
	case Locked, Frozen:
		return 5
	case InvalidOverride:
		return 6
	case Expired:
		return 7
	default:
		return 1
	}
}
