package jobs

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Option is an option for Poller.
type Option interface {
	apply(*Poller) error
}

type option func(*Poller) error

func (o option) apply(p *Poller) error {
	return o(p)
}

// WithInterval sets the pause between polls. The default is one second.
func WithInterval(d time.Duration) Option {
	return option(func(p *Poller) error {
		if d <= 0 {
			return xerrors.Errorf("poll interval must be positive: %s", d)
		}
		p.interval = d
		return nil
	})
}

// WithRandomize draws each pause from an exponential distribution whose
// mean is the poll interval, so pollers started together spread their
// requests instead of hitting the service in lockstep.
func WithRandomize() Option {
	return option(func(p *Poller) error {
		p.randomize = true
		return nil
	})
}

func withClock(c clock) Option {
	return option(func(p *Poller) error {
		p.clock = c
		return nil
	})
}

// Poller reloads jobs until they reach a terminal state.
type Poller struct {
	interval  time.Duration
	randomize bool
	clock     clock
}

// NewPoller builds a Poller. Without options it polls every second.
func NewPoller(opts ...Option) (*Poller, error) {
	p := &Poller{interval: time.Second, clock: realClock{}}
	for _, o := range opts {
		if err := o.apply(p); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}
	return p, nil
}

// Wait polls j until it reaches a terminal state. It returns nil when
// the job is Done, the job's own error when it Failed, and ctx.Err()
// when ctx is canceled during a pause. Reload failures propagate as-is.
//
// Wait panics when j is already terminal: a terminal job never changes
// state again, so waiting on one is a programming error.
func (p *Poller) Wait(ctx context.Context, j Job) error {
	if j.State().Terminal() {
		panic("jobs: Wait called on a terminal job")
	}

	l := log.Ctx(ctx)
	last := j.State()
	for {
		if err := j.Reload(ctx); err != nil {
			return err
		}
		s := j.State()
		if s != last {
			l.Debug().Msgf("job %s moved from %s to %s", j.ID(), last, s)
			last = s
		}
		if s.Terminal() {
			break
		}
		if err := p.pause(ctx, p.interval); err != nil {
			return err
		}
	}

	if j.State() == Failed {
		return j.Err()
	}
	return nil
}

// WaitAll polls every job in q round-robin until all reach a terminal
// state and returns their results in completion order. Every job is
// reloaded at least once, even one that is already done remotely. The
// pause after each poll is the interval divided by the number of jobs
// still in flight, so a batch is polled about as often as a single job.
//
// Cancellation and reload failures abort the wait; results collected so
// far are returned together with the error. A job that Failed does not
// abort the batch, its error is recorded in its Result.
func (p *Poller) WaitAll(ctx context.Context, q *Queue) ([]Result, error) {
	l := log.Ctx(ctx)
	results := make([]Result, 0, q.Len())
	for q.Len() > 0 {
		j := q.pop()
		if err := j.Reload(ctx); err != nil {
			return results, err
		}

		if s := j.State(); s.Terminal() {
			var err error
			if s == Failed {
				err = j.Err()
			}
			results = append(results, Result{Job: j, Err: err})
			l.Debug().Msgf("job %s finished as %s, %d remaining", j.ID(), s, q.Len())
			continue
		}

		q.Push(j)
		if err := p.pause(ctx, p.interval/time.Duration(q.Len())); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Poller) pause(ctx context.Context, d time.Duration) error {
	if p.randomize {
		d = time.Duration(rand.ExpFloat64() * float64(d))
	}
	return p.clock.sleep(ctx, d)
}

type clock interface {
	sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
