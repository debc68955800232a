package types

import (
	"context"
	"errors"
	"strings"
)

type ErrorKind string

const (
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindNoResults           ErrorKind = "NoResults"
	KindDownloadFailed      ErrorKind = "DownloadFailed"
	KindProbeFailed         ErrorKind = "ProbeFailed"
	KindTranscodeFailed     ErrorKind = "TranscodeFailed"
	KindRankingParseFailed  ErrorKind = "RankingParseFailed"
	KindTimeout             ErrorKind = "Timeout"
	KindCancelled           ErrorKind = "Cancelled"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrNoResults           = &Error{Kind: KindNoResults}
	ErrDownloadFailed      = &Error{Kind: KindDownloadFailed}
	ErrProbeFailed         = &Error{Kind: KindProbeFailed}
	ErrTranscodeFailed     = &Error{Kind: KindTranscodeFailed}
	ErrRankingParseFailed  = &Error{Kind: KindRankingParseFailed}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrCancelled           = &Error{Kind: KindCancelled}
)

type Error struct {
	Kind ErrorKind
	// Op is the failing operation, e.g. "search", "ffmpeg cut".
	Op string
	// Provider names the provider or tool involved, if any.
	Provider string
	Err      error
}

// NewError builds a typed error. A context deadline or cancellation in err
// overrides the requested kind with Timeout or Cancelled.
func NewError(kind ErrorKind, op, provider string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	}
	return &Error{Kind: kind, Op: op, Provider: provider, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Provider != "" {
		b.WriteString(" [")
		b.WriteString(e.Provider)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Provider == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain. Bare context
// deadlines report Timeout and cancellations report Cancelled.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return ""
}
