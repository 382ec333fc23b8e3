// Package errs provides stack-trace-carrying error wrapping for
// forgebuild. Every fatal error is wrapped once at its origin with
// WithStackTrace so later log output can show "in <file>:<line> in <fn>"
// context, and independent failures (e.g. per-project resolution errors)
// are aggregated with multierror rather than short-circuiting on the
// first one.
package errs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// WithStackTrace wraps err with a stack trace, unless err is nil or already
// carries one.
func WithStackTrace(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(interface{ StackTrace() errors.StackTrace }); ok {
		return err
	}

	return errors.WithStack(err)
}

// Errorf formats a new error and immediately attaches a stack trace.
func Errorf(format string, args ...interface{}) error {
	return errors.WithStack(fmt.Errorf(format, args...))
}

// Unwrap returns the innermost error, peeling back pkg/errors wrapping.
func Unwrap(err error) error {
	type causer interface {
		Cause() error
	}

	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}

		err = c.Cause()
	}
}

// NewAggregate returns a *multierror.Error seeded with errs, dropping nils.
// A nil error is returned when every entry is nil.
func NewAggregate(errs ...error) error {
	var merr *multierror.Error

	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if merr == nil {
		return nil
	}

	return merr
}

// Collector accumulates errors from independent units of work (e.g. one per
// project during a crawl) without aborting the caller's loop.
type Collector struct {
	merr *multierror.Error
}

// Add records err if non-nil.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}

	c.merr = multierror.Append(c.merr, err)
}

// ErrorOrNil returns the aggregated error, or nil if nothing was added.
func (c *Collector) ErrorOrNil() error {
	if c.merr == nil {
		return nil
	}

	return c.merr.ErrorOrNil()
}

// Len reports how many errors have been collected.
func (c *Collector) Len() int {
	if c.merr == nil {
		return 0
	}

	return len(c.merr.Errors)
}
