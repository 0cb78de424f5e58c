// Package ctxerr provides functions to wrap errors with annotations and
// stack traces.
//
// Call New or Wrap[f] as close as possible to where the error is
// encountered. Only the innermost annotation captures a stack trace, outer
// ones just add a message. Typed errors wrapped this way stay reachable with
// errors.As.
package ctxerr

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rotisserie/eris"
)

// New creates a new error with the provided error message.
func New(ctx context.Context, errMsg string) error {
	return ensureCommonMetadata(ctx, errors.New(errMsg))
}

// Wrap annotates err with the provided message. It returns nil if err is nil.
func Wrap(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	err = ensureCommonMetadata(ctx, err)
	// do not wrap with eris.Wrap, as we want only the root error closest to the
	// actual error condition to capture the stack trace, others just wrap using
	// pkg/errors.
	return errors.Wrap(err, msg)
}

// Wrapf annotates err with the provided formatted message. It returns nil if
// err is nil.
func Wrapf(ctx context.Context, err error, fmsg string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	err = ensureCommonMetadata(ctx, err)
	return errors.Wrapf(err, fmsg, args...)
}

// Cause returns the root error in err's chain.
func Cause(err error) error {
	for {
		uerr := errors.Unwrap(err)
		if uerr == nil {
			return err
		}
		err = uerr
	}
}

// StackTrace returns the formatted stack captured by the innermost
// annotation of err, or an empty string.
func StackTrace(err error) string {
	var sf interface{ StackFrames() []uintptr }
	if !errors.As(err, &sf) {
		return ""
	}
	return eris.ToString(err, true)
}

func ensureCommonMetadata(ctx context.Context, err error) error {
	var sf interface{ StackFrames() []uintptr }
	if err != nil && !errors.As(err, &sf) {
		// no eris error nowhere in the chain, add the common metadata with the stack trace
		err = eris.Wrapf(err, "timestamp: %s", time.Now().Format(time.RFC3339))
	}
	return err
}
