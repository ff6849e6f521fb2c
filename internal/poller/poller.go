// Package poller runs the fixed-interval status loops used for generation jobs
// and avatar creation.
package poller

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTooManyFailures = errors.New("poller: too many consecutive failures")
	ErrDeadline        = errors.New("poller: deadline exceeded")
)

type Options struct {
	// Interval between probes. The first probe happens one interval after Run
	// starts.
	Interval time.Duration
	// MaxFailures consecutive probe errors end the loop. Zero means unbounded.
	MaxFailures int
	// Deadline is a wall-clock ceiling measured from the start of Run. Zero
	// means none.
	Deadline time.Duration
	// OnError sees every probe error together with the current streak length.
	OnError func(err error, consecutive int)
}

// Probe checks the remote state once. done=true stops the loop successfully.
type Probe func(ctx context.Context) (done bool, err error)

// Run calls probe on every tick until it reports done, ctx is cancelled, the
// failure streak reaches MaxFailures or Deadline passes.
func Run(ctx context.Context, opts Options, probe Probe) error {
	if opts.Interval <= 0 {
		return errors.New("poller: interval must be positive")
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if opts.Deadline > 0 {
		timer := time.NewTimer(opts.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrDeadline
		case <-ticker.C:
		}

		done, err := probe(ctx)
		if ctx.Err() != nil {
			// Whatever came back belongs to a loop nobody is waiting on.
			return ctx.Err()
		}
		if err != nil {
			failures++
			if opts.OnError != nil {
				opts.OnError(err, failures)
			}
			if opts.MaxFailures > 0 && failures >= opts.MaxFailures {
				return ErrTooManyFailures
			}
			continue
		}
		failures = 0
		if done {
			return nil
		}
	}
}
