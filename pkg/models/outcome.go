package models

// Status tags an Outcome.
type Status int

const (
	StatusOk Status = iota
	StatusFallback
)

func (s Status) String() string {
	if s == StatusFallback {
		return "fallback"
	}
	return "ok"
}

// Outcome is the result of an operation that may degrade to a fallback
// value instead of failing. Reason is set only for fallbacks.
type Outcome[T any] struct {
	Value  T
	Status Status
	Reason error
}

// Ok wraps a primary result.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusOk}
}

// Fallback wraps a degraded result together with why the primary path was
// not used.
func Fallback[T any](v T, reason error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StatusFallback, Reason: reason}
}

// IsFallback reports whether the outcome came from a fallback path.
func (o Outcome[T]) IsFallback() bool {
	return o.Status == StatusFallback
}
