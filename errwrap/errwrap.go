// Package errwrap collects the two error shapes the kernel needs outside
// of dagerr's own coded errors: adding a `node[name]: ...`-style prefix at
// a call boundary, and folding a loop's worth of independent failures
// (e.g. every node an engine deinits) into one returned error instead of
// reporting only the first or the last.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Wrapf prefixes err with a formatted message, preserving err as the
// wrapped cause so errors.Is/errors.As still see through it. A nil err
// passes through unchanged — there is nothing to add context to.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Append folds err onto a running reterr, returning a *multierror.Error
// once both are non-nil. Callers that don't know ahead of time whether
// either side is nil can just write `reterr = errwrap.Append(reterr, err)`
// on every iteration of a loop instead of branching on nilness themselves.
func Append(reterr, err error) error {
	switch {
	case reterr == nil:
		return err
	case err == nil:
		return reterr
	default:
		return multierror.Append(reterr, err)
	}
}

// String renders err as text, or "" for a nil err rather than panicking —
// useful in log lines that accept an error that may not have occurred.
func String(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
