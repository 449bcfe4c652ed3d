// Package failures defines the error taxonomy shared by the compiler adapter, the deployment
// orchestrator and the contract proxy.
package failures

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindCompilation
	KindArtifactNotFound
	KindEncoding
	KindDecoding
	KindSimulation
	KindRevert
	KindCallReverted
	KindSubmission
	KindTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindCompilation:      "compilation",
	KindArtifactNotFound: "artifact_not_found",
	KindEncoding:         "encoding",
	KindDecoding:         "decoding",
	KindSimulation:       "simulation",
	KindRevert:           "revert",
	KindCallReverted:     "call_reverted",
	KindSubmission:       "submission",
	KindTimeout:          "timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// class maps a kind onto the errdefs category it belongs to.
func (k Kind) class() error {
	switch k {
	case KindArtifactNotFound:
		return errdefs.ErrNotFound
	case KindEncoding, KindDecoding:
		return errdefs.ErrInvalidArgument
	case KindCompilation:
		return errdefs.ErrFailedPrecondition
	case KindSimulation, KindRevert, KindCallReverted:
		return errdefs.ErrAborted
	case KindSubmission:
		return errdefs.ErrUnavailable
	case KindTimeout:
		return context.DeadlineExceeded
	default:
		return errdefs.ErrUnknown
	}
}

type (
	// Location points at a span of a compiled source file.
	Location struct {
		File  string `json:"file"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}

	// Diagnostic is a single compiler message.
	Diagnostic struct {
		Severity         string   `json:"severity"`
		Type             string   `json:"type"`
		Message          string   `json:"message"`
		FormattedMessage string   `json:"formattedMessage"`
		Location         Location `json:"sourceLocation"`
	}

	// Error is returned by every pipeline operation. Kind is meant for branching, Detail for
	// humans. Reason carries the revert reason verbatim when the remote contract supplied one.
	Error struct {
		Kind        Kind
		Op          string
		Detail      string
		Reason      string
		HasReason   bool
		Diagnostics []Diagnostic
		Err         error
	}
)

func (d Diagnostic) IsFatal() bool {
	return strings.EqualFold(d.Severity, "error")
}

func (d Diagnostic) String() string {
	if d.Location.File != "" {
		return fmt.Sprintf("%s:%d-%d: %s: %s", d.Location.File, d.Location.Start, d.Location.End, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.HasReason {
		fmt.Fprintf(&b, " (reason: %q)", e.Reason)
	}
	for _, d := range e.Diagnostics {
		if d.IsFatal() {
			b.WriteString("\n  ")
			b.WriteString(d.String())
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the cause and the errdefs class, so errors.Is works with either.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.class()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithReason attaches a revert reason.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	e.HasReason = true
	return e
}

// Is reports whether err is a pipeline failure of the given kind.
func Is(err error, kind Kind) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == kind
	}
	return false
}

// KindOf returns the kind of a pipeline failure, or KindUnknown.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

// ReasonOf returns the revert reason carried by err, if any.
func ReasonOf(err error) (string, bool) {
	var perr *Error
	if errors.As(err, &perr) && perr.HasReason {
		return perr.Reason, true
	}
	return "", false
}

// IsRejected reports whether the remote contract logic rejected the operation, whichever stage
// noticed it.
func IsRejected(err error) bool {
	switch KindOf(err) {
	case KindSimulation, KindRevert, KindCallReverted:
		return true
	default:
		return false
	}
}

// FromTransport classifies an RPC error that is not a revert: deadline overruns become
// timeouts, everything else a submission failure.
func FromTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, op, err)
	}
	return Wrap(KindSubmission, op, err)
}
