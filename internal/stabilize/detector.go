// Package stabilize decides when a mutable text region has stopped changing.
// The underlying signal (streamed chat UI text) offers no push notification,
// so detection is a bounded sample-sleep loop.
package stabilize

import (
	"context"
	"fmt"
	"time"

	"github.com/promptproof/promptproof/pkg/types"
)

// Sampler produces the current value of the watched text region.
type Sampler func(ctx context.Context) (string, error)

// Options configure one detection. Zero values take the defaults below.
type Options struct {
	// Interval is the sleep between samples. Default 1s.
	Interval time.Duration
	// Repeats is the number of consecutive identical samples required before
	// the text counts as stabilized. Default 3.
	Repeats int
	// Timeout bounds the whole detection. Default 60s.
	Timeout time.Duration
}

const (
	defaultInterval = time.Second
	defaultRepeats  = 3
	defaultTimeout  = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.Repeats <= 0 {
		o.Repeats = defaultRepeats
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// Result is the outcome of one detection. Text carries the last sampled value
// even when detection failed, so a partial reply can still be recorded.
type Result struct {
	Text       string
	Samples    int
	Stabilized bool
}

// Detect samples until the same value is observed Repeats times in a row,
// then returns it. It never short-circuits on the first read: leftover text
// from a previous turn looks identical to a finished reply, so even an
// unchanged or empty value must survive the full confirmation window.
//
// Errors: types.ErrTimeoutExceeded when the timeout elapses after at least
// one successful sample; types.ErrSourceUnavailable when the sampler never
// produced a value; the context error when ctx is cancelled. In all cases the
// returned Result holds whatever was last observed.
func Detect(ctx context.Context, sample Sampler, opts Options) (Result, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	var res Result
	var sampled bool
	var lastErr error
	streak := 0

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !time.Now().Before(deadline) {
			if !sampled {
				if lastErr != nil {
					return res, fmt.Errorf("sampler never produced a value: %v: %w", lastErr, types.ErrSourceUnavailable)
				}
				return res, fmt.Errorf("sampler never produced a value: %w", types.ErrSourceUnavailable)
			}
			return res, fmt.Errorf("text still changing after %s: %w", opts.Timeout, types.ErrTimeoutExceeded)
		}

		text, err := sample(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			// A failed sample breaks any streak; the region may be re-rendering.
			lastErr = err
			streak = 0
		} else {
			res.Samples++
			if sampled && text == res.Text {
				streak++
			} else {
				streak = 1
			}
			res.Text = text
			sampled = true

			if streak >= opts.Repeats {
				res.Stabilized = true
				return res, nil
			}
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}
