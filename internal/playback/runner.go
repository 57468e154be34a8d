package playback

import (
	"context"
	"errors"
	"time"

	"symbiosing/internal/sequence"
)

// ErrRunnerClosed is returned once the runner loop has exited.
var ErrRunnerClosed = errors.New("playback runner stopped")

// DefaultTick is the interval between due-entry checks while running.
const DefaultTick = 5 * time.Millisecond

// Runner owns an Engine and feeds it play, stop, countdown and tick events
// from a single goroutine. The ticker only exists while the engine is
// running.
type Runner struct {
	engine   *Engine
	interval time.Duration
	requests chan func(*Engine)
	done     chan struct{}
	onIdle   func(Status)
}

func NewRunner(engine *Engine, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTick
	}
	return &Runner{
		engine:   engine,
		interval: interval,
		requests: make(chan func(*Engine)),
		done:     make(chan struct{}),
	}
}

// OnIdle registers a callback run on the loop goroutine whenever a playback
// returns to NotRunning. Set it before Run.
func (r *Runner) OnIdle(fn func(Status)) { r.onIdle = fn }

// Run processes events until ctx is cancelled. Any active playback is
// stopped on exit.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	var ticker *time.Ticker
	var tickC <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer stopTicker()

	for {
		before := r.engine.State()
		select {
		case <-ctx.Done():
			r.engine.Stop()
			return
		case fn := <-r.requests:
			fn(r.engine)
		case <-tickC:
			r.engine.Tick()
		}

		after := r.engine.State()
		switch {
		case after == Running && ticker == nil:
			ticker = time.NewTicker(r.interval)
			tickC = ticker.C
			// A due entry at 0 should not wait a whole interval.
			r.engine.Tick()
			if r.engine.State() != Running {
				stopTicker()
			}
		case after != Running:
			stopTicker()
		}
		active := before != NotRunning || after != NotRunning
		if active && r.engine.State() == NotRunning && r.onIdle != nil {
			r.onIdle(r.engine.Status())
		}
	}
}

func (r *Runner) do(fn func(*Engine)) error {
	reply := make(chan struct{})
	select {
	case r.requests <- func(e *Engine) { fn(e); close(reply) }:
	case <-r.done:
		return ErrRunnerClosed
	}
	<-reply
	return nil
}

func (r *Runner) Play(entries []sequence.Entry) error {
	var err error
	if derr := r.do(func(e *Engine) { err = e.Play(entries) }); derr != nil {
		return derr
	}
	return err
}

func (r *Runner) PlaySynchronized(entries []sequence.Entry, outOf int) error {
	var err error
	if derr := r.do(func(e *Engine) { err = e.PlaySynchronized(entries, outOf) }); derr != nil {
		return derr
	}
	return err
}

// Countdown forwards a peer countdown message.
func (r *Runner) Countdown(count, outOf int) error {
	return r.do(func(e *Engine) { e.Countdown(count, outOf) })
}

func (r *Runner) Stop() error {
	return r.do(func(e *Engine) { e.Stop() })
}

func (r *Runner) Status() Status {
	var st Status
	if err := r.do(func(e *Engine) { st = e.Status() }); err != nil {
		return Status{State: NotRunning}
	}
	return st
}
