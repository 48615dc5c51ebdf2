// Package errors provides the structured error types shared by the
// ingestion, scoring and persistence layers. Every type carries the
// operation that failed so callers can log it, and every type unwraps to
// its cause so errors.Is / errors.As keep working through the chain.
package errors

import (
	"errors"
	"fmt"
)

// ValidationError indicates invalid input/config/state provided by a caller.
type ValidationError struct {
	Op  string // where it happened (package.Function)
	Msg string
	Err error
}

func (e *ValidationError) Error() string     { return format("validation", e.Op, e.Msg, e.Err) }
func (e *ValidationError) Unwrap() error     { return e.Err }
func (e *ValidationError) Operation() string { return e.Op }

func NewValidation(op, msg string, err error) error {
	return &ValidationError{Op: op, Msg: msg, Err: err}
}

// DBError represents database access failures that are not constraint
// violations.
type DBError struct {
	Op  string
	Msg string
	Err error
}

func (e *DBError) Error() string     { return format("db", e.Op, e.Msg, e.Err) }
func (e *DBError) Unwrap() error     { return e.Err }
func (e *DBError) Operation() string { return e.Op }

func NewDB(op, msg string, err error) error { return &DBError{Op: op, Msg: msg, Err: err} }

// ExternalAPIError represents failures in external services (HTTP APIs, SDKs, brokers).
type ExternalAPIError struct {
	Op     string
	Msg    string
	Err    error
	System string // e.g. "google_places", "nats"
}

func (e *ExternalAPIError) Error() string {
	sys := e.System
	if sys == "" {
		sys = "external"
	}
	return format(sys, e.Op, e.Msg, e.Err)
}

func (e *ExternalAPIError) Unwrap() error     { return e.Err }
func (e *ExternalAPIError) Operation() string { return e.Op }

func NewExternal(op, system, msg string, err error) error {
	return &ExternalAPIError{Op: op, System: system, Msg: msg, Err: err}
}

// BizError is for domain failures that aren't programmer bugs (unknown
// POI, inactive POI, unknown source).
type BizError struct {
	Op  string
	Msg string
	Err error
}

func (e *BizError) Error() string     { return format("biz", e.Op, e.Msg, e.Err) }
func (e *BizError) Unwrap() error     { return e.Err }
func (e *BizError) Operation() string { return e.Op }

func NewBiz(op, msg string, err error) error { return &BizError{Op: op, Msg: msg, Err: err} }

// SourceUnavailableError is raised when a provider times out, errors or is
// short-circuited. It is never fatal for the surrounding pipeline: the
// source is excluded and processing continues.
type SourceUnavailableError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return format("source unavailable", e.Op, e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func NewSourceUnavailable(op, source string, err error) error {
	return &SourceUnavailableError{Op: op, Source: source, Err: err}
}

// ConstraintKind identifies which storage constraint was violated.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// ConstraintViolationError is fatal for the transaction it happened in.
type ConstraintViolationError struct {
	Op   string
	Kind ConstraintKind
	Err  error
}

func (e *ConstraintViolationError) Error() string {
	return format("constraint violation", e.Op, string(e.Kind), e.Err)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

func NewConstraintViolation(op string, kind ConstraintKind, err error) error {
	return &ConstraintViolationError{Op: op, Kind: kind, Err: err}
}

// ClassificationError reports which step of a POI classification failed.
type ClassificationError struct {
	POIID int64
	Step  string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed: poi %d: %s: %v", e.POIID, e.Step, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

func NewClassification(poiID int64, step string, err error) error {
	return &ClassificationError{POIID: poiID, Step: step, Err: err}
}

// TransactionError is returned after a unit of work has been rolled back
// because one of its writes failed.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed: %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func NewTransaction(op string, err error) error { return &TransactionError{Op: op, Err: err} }

var (
	// ErrInsufficientSources means no source returned usable data. Stored
	// metrics are left as they are and the result is marked unvalidated.
	ErrInsufficientSources = errors.New("insufficient sources")

	// ErrBudgetExceeded means the monthly provider budget is spent. Calls
	// are skipped unless forced.
	ErrBudgetExceeded = errors.New("provider budget exceeded")

	// ErrNotFound is wrapped by lookups that found no row.
	ErrNotFound = errors.New("not found")
)

// Kind sentinels: errors.Is(err, ErrDB) matches any *DBError in the chain
// through the Is helper below.
var (
	ErrValidation          = &ValidationError{}
	ErrDB                  = &DBError{}
	ErrExternal            = &ExternalAPIError{}
	ErrBiz                 = &BizError{}
	ErrSourceUnavailable   = &SourceUnavailableError{}
	ErrConstraintViolation = &ConstraintViolationError{}
	ErrClassification      = &ClassificationError{}
	ErrTransaction         = &TransactionError{}
)

// Is reports whether err matches target. Kind sentinels match by type;
// anything else falls back to errors.Is.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *ValidationError:
		var v *ValidationError
		return errors.As(err, &v)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	case *ExternalAPIError:
		var ex *ExternalAPIError
		return errors.As(err, &ex)
	case *BizError:
		var b *BizError
		return errors.As(err, &b)
	case *SourceUnavailableError:
		var s *SourceUnavailableError
		return errors.As(err, &s)
	case *ConstraintViolationError:
		var c *ConstraintViolationError
		return errors.As(err, &c)
	case *ClassificationError:
		var c *ClassificationError
		return errors.As(err, &c)
	case *TransactionError:
		var tx *TransactionError
		return errors.As(err, &tx)
	default:
		return errors.Is(err, target)
	}
}

// As is errors.As, re-exported so callers importing this package as errs
// don't need the standard library package too.
func As(err error, target any) bool { return errors.As(err, target) }

func format(kind, op, msg string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", kind, op, msg, err)
	}
	return fmt.Sprintf("%s: %s: %s", kind, op, msg)
}
