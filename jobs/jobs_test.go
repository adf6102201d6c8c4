package jobs

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// fakeJob reveals one scripted state per Reload and then stays on the
// last one.
type fakeJob struct {
	id      string
	states  []State
	idx     int
	failure error
	reloads int
}

func newFakeJob(id string, states ...State) *fakeJob {
	return &fakeJob{id: id, states: states, idx: -1}
}

func (j *fakeJob) ID() string { return j.id }

func (j *fakeJob) Reload(context.Context) error {
	j.reloads++
	if j.idx < len(j.states)-1 {
		j.idx++
	}
	return nil
}

func (j *fakeJob) State() State {
	if j.idx < 0 {
		return Submitted
	}
	return j.states[j.idx]
}

func (j *fakeJob) Err() error {
	if j.State() == Failed {
		return j.failure
	}
	return nil
}

type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func newTestPoller(t *testing.T, c clock, opts ...Option) *Poller {
	t.Helper()
	p, err := NewPoller(append(opts, withClock(c))...)
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	return p
}

func TestPoller_Wait(t *testing.T) {
	c := &fakeClock{}
	p := newTestPoller(t, c)
	j := newFakeJob("j1", Pending, Running, Done)

	if err := p.Wait(context.Background(), j); err != nil {
		t.Errorf("err should be nil, but %v", err)
	}
	if j.reloads != 3 {
		t.Errorf("job should be reloaded 3 times, but %d times", j.reloads)
	}
	want := []time.Duration{time.Second, time.Second}
	if !reflect.DeepEqual(c.sleeps, want) {
		t.Errorf("pauses should be %v, but %v", want, c.sleeps)
	}
}

func TestPoller_Wait_failed(t *testing.T) {
	c := &fakeClock{}
	p := newTestPoller(t, c)
	failure := errors.New("invalid: no such column")

	j := newFakeJob("j1", Running, Running, Running, Running, Failed)
	j.failure = failure

	if err := p.Wait(context.Background(), j); err != failure {
		t.Errorf("err should be the job's failure, but %v", err)
	}
	if j.reloads != 5 {
		t.Errorf("job should be reloaded until it fails, but %d times", j.reloads)
	}
	if len(c.sleeps) != 4 {
		t.Errorf("poller should pause 4 times, but %d times", len(c.sleeps))
	}
}

func TestPoller_Wait_terminalPanics(t *testing.T) {
	p := newTestPoller(t, &fakeClock{})
	j := newFakeJob("j1", Done)
	j.idx = 0

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Wait should panic on a terminal job")
		}
		if r != "jobs: Wait called on a terminal job" {
			t.Errorf("unexpected panic message: %v", r)
		}
	}()
	_ = p.Wait(context.Background(), j)
}

func TestPoller_Wait_cancel(t *testing.T) {
	p, err := NewPoller(WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := newFakeJob("j1", Running, Done)
	if err := p.Wait(ctx, j); !errors.Is(err, context.Canceled) {
		t.Errorf("err should be context.Canceled, but %v", err)
	}
	if j.reloads != 1 {
		t.Errorf("job should be reloaded once before the pause, but %d times", j.reloads)
	}
}

func TestPoller_Wait_randomize(t *testing.T) {
	c := &fakeClock{}
	p := newTestPoller(t, c, WithRandomize())

	j := newFakeJob("j1", Running, Running, Done)
	if err := p.Wait(context.Background(), j); err != nil {
		t.Errorf("err should be nil, but %v", err)
	}
	if len(c.sleeps) != 2 {
		t.Fatalf("poller should pause 2 times, but %d times", len(c.sleeps))
	}
	for i, d := range c.sleeps {
		if d < 0 {
			t.Errorf("pause %d should not be negative, but %s", i, d)
		}
	}
}

func TestPoller_WaitAll(t *testing.T) {
	c := &fakeClock{}
	p := newTestPoller(t, c, WithInterval(300*time.Millisecond))

	a := newFakeJob("a", Running, Done)
	b := newFakeJob("b", Done)
	x := newFakeJob("x", Running, Running, Done)

	q := &Queue{}
	q.Push(a)
	q.Push(b)
	q.Push(x)

	results, err := p.WaitAll(context.Background(), q)
	if err != nil {
		t.Fatalf("WaitAll: %v", err)
	}

	var order []string
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("job %s should succeed, but %v", r.Job.ID(), r.Err)
		}
		order = append(order, r.Job.ID())
	}
	if want := []string{"b", "a", "x"}; !reflect.DeepEqual(order, want) {
		t.Errorf("completion order should be %v, but %v", want, order)
	}

	for _, j := range []*fakeJob{a, b, x} {
		if j.reloads == 0 {
			t.Errorf("job %s should be reloaded at least once", j.id)
		}
	}

	// The pause shrinks with the number of jobs still in flight.
	want := []time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 300 * time.Millisecond}
	if !reflect.DeepEqual(c.sleeps, want) {
		t.Errorf("pauses should be %v, but %v", want, c.sleeps)
	}
}

func TestPoller_WaitAll_failure(t *testing.T) {
	p := newTestPoller(t, &fakeClock{})
	failure := errors.New("quota exceeded")

	good := newFakeJob("good", Running, Done)
	bad := newFakeJob("bad", Failed)
	bad.failure = failure

	q := &Queue{}
	q.Push(good)
	q.Push(bad)

	results, err := p.WaitAll(context.Background(), q)
	if err != nil {
		t.Fatalf("a failed job should not abort the batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results should be 2, but %d", len(results))
	}
	if results[0].Job.ID() != "bad" || results[0].Err != failure {
		t.Errorf("first result should be the failed job, but %v", results[0])
	}
	if results[1].Job.ID() != "good" || results[1].Err != nil {
		t.Errorf("second result should be the good job, but %v", results[1])
	}
}

func TestNewPoller_invalidInterval(t *testing.T) {
	if _, err := NewPoller(WithInterval(0)); err == nil {
		t.Error("NewPoller should reject a zero interval")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Submitted: "SUBMITTED",
		Pending:   "PENDING",
		Running:   "RUNNING",
		Done:      "DONE",
		Failed:    "FAILED",
		State(99): "UNKNOWN",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("State(%d).String() should be %q, but %q", int(s), want, s.String())
		}
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{Submitted, Pending, Running} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{Done, Failed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
