package models

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can branch on them with errors.Is.
type Kind int

const (
	KindUnknown Kind = iota
	KindUpstreamUnavailable
	KindUpstreamThrottled
	KindUpstreamForbidden
	KindOptimizerUnavailable
	KindRerankerInvalidOutput
	KindRateBudgetExhausted
	KindNotFound
	KindInvalidQuery
	KindWaitTimeout
	KindSummaryUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindUpstreamUnavailable:   "upstream unavailable",
	KindUpstreamThrottled:     "upstream throttled",
	KindUpstreamForbidden:     "upstream forbidden",
	KindOptimizerUnavailable:  "optimizer unavailable",
	KindRerankerInvalidOutput: "reranker invalid output",
	KindRateBudgetExhausted:   "rate budget exhausted",
	KindNotFound:              "not found",
	KindInvalidQuery:          "invalid query",
	KindWaitTimeout:           "wait timeout",
	KindSummaryUnavailable:    "summary unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrUpstreamUnavailable   = &Error{Kind: KindUpstreamUnavailable}
	ErrUpstreamThrottled     = &Error{Kind: KindUpstreamThrottled}
	ErrUpstreamForbidden     = &Error{Kind: KindUpstreamForbidden}
	ErrOptimizerUnavailable  = &Error{Kind: KindOptimizerUnavailable}
	ErrRerankerInvalidOutput = &Error{Kind: KindRerankerInvalidOutput}
	ErrRateBudgetExhausted   = &Error{Kind: KindRateBudgetExhausted}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidQuery          = &Error{Kind: KindInvalidQuery}
	ErrWaitTimeout           = &Error{Kind: KindWaitTimeout}
	ErrSummaryUnavailable    = &Error{Kind: KindSummaryUnavailable}
)

// Error is a classified failure. Op names the operation that failed and Err
// carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError builds a classified error for op wrapping cause.
func NewError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
