package specs

import (
	"context"
)

// Specification defines the Specification pattern for domain objects.
// It supports composition via And/Or/Not and evaluation with context for cancellation and timeouts.
// Keep implementations small and focused; compose for complexity.
type Specification[T any] interface {
	IsSatisfiedBy(ctx context.Context, v T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

type specFunc[T any] func(ctx context.Context, v T) bool

func (f specFunc[T]) IsSatisfiedBy(ctx context.Context, v T) bool { return f(ctx, v) }

func (f specFunc[T]) And(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil { // cancelled or timed out
			return false
		}
		if !f(ctx, v) {
			return false
		}
		return other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Or(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		if f(ctx, v) {
			return true
		}
		return other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Not() Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		return !f(ctx, v)
	})
}

// New constructs a Specification from a predicate.
func New[T any](fn func(ctx context.Context, v T) bool) Specification[T] { return specFunc[T](fn) }

// All is satisfied when every spec is; an empty list is always satisfied.
func All[T any](specs ...Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		for _, s := range specs {
			if ctx.Err() != nil || !s.IsSatisfiedBy(ctx, v) {
				return false
			}
		}
		return true
	})
}

// Rule is a named specification, so callers can report which rule failed.
type Rule[T any] struct {
	Name string
	Spec Specification[T]
}

// FirstFailing returns the name of the first rule v does not satisfy.
func FirstFailing[T any](ctx context.Context, rules []Rule[T], v T) (string, bool) {
	for _, r := range rules {
		if !r.Spec.IsSatisfiedBy(ctx, v) {
			return r.Name, true
		}
	}
	return "", false
}

// Evaluate evaluates a spec with the provided context.
func Evaluate[T any](ctx context.Context, s Specification[T], v T) bool {
	return s.IsSatisfiedBy(ctx, v)
}
