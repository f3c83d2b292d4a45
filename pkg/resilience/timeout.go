// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	"github.com/weft-ai/weft/pkg/errors"
)

// WithTimeout executes fn with a timeout, returning a timeout error if exceeded.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", tctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
}

// WithTimeoutResult executes fn with a timeout, returning both result and error.
func WithTimeoutResult(ctx context.Context, d time.Duration, fn func(context.Context) (any, error)) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := fn(tctx)
		done <- outcome{result: r, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-tctx.Done():
		return nil, errors.New(errors.CodeTimeout, "operation exceeded timeout", tctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
}
