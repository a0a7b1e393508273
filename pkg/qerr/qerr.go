// Package qerr defines the typed error taxonomy returned by the query
// engine pipeline. Every error a caller can act on (retry, report to a
// user, surface a status code) carries a Kind so callers can branch with
// errors.Is / errors.As instead of string-matching messages.
package qerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the fixed error categories the pipeline can
// produce. New kinds are added deliberately, not inferred from strings.
type Kind string

const (
	DatabaseNotFound Kind = "database_not_found"
	BadDatabaseShape Kind = "bad_database_shape"
	BadFilterShape   Kind = "bad_filter_shape"
	BadRegex         Kind = "bad_regex"
	BadCursor        Kind = "bad_cursor"
	QueryTimeout     Kind = "query_timeout"
	QueryCancelled   Kind = "query_cancelled"
	TooComplex       Kind = "too_complex"
	CacheIOError     Kind = "cache_io_error"
	ExportFailed     Kind = "export_failed"
)

// Error is the concrete type returned across package boundaries. Op names
// the operation that failed ("loader.Load", "filter.Apply"); Cause, when
// present, is the underlying error that Error wraps.
type Error struct {
	Kind  Kind
	Op    string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, qerr.New(qerr.BadCursor, "", "")) or, more
// idiomatically, use the Is* helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error that wraps cause.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err, returning ("", false) when err is not
// (or does not wrap) a *qerr.Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func sentinel(kind Kind) *Error { return &Error{Kind: kind} }

var (
	// ErrDatabaseNotFound matches any error with Kind DatabaseNotFound via errors.Is.
	ErrDatabaseNotFound = sentinel(DatabaseNotFound)
	ErrBadDatabaseShape = sentinel(BadDatabaseShape)
	ErrBadFilterShape   = sentinel(BadFilterShape)
	ErrBadRegex         = sentinel(BadRegex)
	ErrBadCursor        = sentinel(BadCursor)
	ErrQueryTimeout     = sentinel(QueryTimeout)
	ErrQueryCancelled   = sentinel(QueryCancelled)
	ErrTooComplex       = sentinel(TooComplex)
	ErrCacheIOError     = sentinel(CacheIOError)
	ErrExportFailed     = sentinel(ExportFailed)
)

func IsDatabaseNotFound(err error) bool { return errors.Is(err, ErrDatabaseNotFound) }
func IsBadDatabaseShape(err error) bool { return errors.Is(err, ErrBadDatabaseShape) }
func IsBadFilterShape(err error) bool   { return errors.Is(err, ErrBadFilterShape) }
func IsBadRegex(err error) bool         { return errors.Is(err, ErrBadRegex) }
func IsBadCursor(err error) bool        { return errors.Is(err, ErrBadCursor) }
func IsQueryTimeout(err error) bool     { return errors.Is(err, ErrQueryTimeout) }
func IsQueryCancelled(err error) bool   { return errors.Is(err, ErrQueryCancelled) }
func IsTooComplex(err error) bool       { return errors.Is(err, ErrTooComplex) }
func IsCacheIOError(err error) bool     { return errors.Is(err, ErrCacheIOError) }
func IsExportFailed(err error) bool     { return errors.Is(err, ErrExportFailed) }
