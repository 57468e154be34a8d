package playback

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"symbiosing/internal/instruction"
	"symbiosing/internal/sequence"
	"symbiosing/internal/timecode"
)

// Metrics
var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "symbio_dispatch_total", Help: "Device commands dispatched"},
		[]string{"result"},
	)
	entriesFired = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "symbio_entries_fired_total", Help: "Timeline entries popped during playback"},
	)
	dispatchLateness = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "symbio_dispatch_lateness_seconds",
			Help:    "Delay between an entry's scheduled time and its dispatch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)
	playbackState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "symbio_playback_state", Help: "0 not running, 1 countdown, 2 running"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(dispatchTotal, entriesFired, dispatchLateness, playbackState)
}

// ErrBusy is returned when play is requested while a playback is active.
var ErrBusy = errors.New("playback already active")

// State is the playback state.
type State int

const (
	NotRunning State = iota
	Countdown
	Running
)

func (s State) String() string {
	switch s {
	case Countdown:
		return "countdown"
	case Running:
		return "running"
	}
	return "not_running"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Sink delivers one command to one device. Send must not block for long;
// the engine does not wait for acknowledgement.
type Sink interface {
	Send(device int, cmd instruction.Command) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(device int, cmd instruction.Command) error

func (f SinkFunc) Send(device int, cmd instruction.Command) error { return f(device, cmd) }

// Status is a snapshot of the engine.
type Status struct {
	State      State         `json:"state"`
	Count      int           `json:"count,omitempty"`
	OutOf      int           `json:"outOf,omitempty"`
	Elapsed    timecode.Time `json:"elapsedMs"`
	Remaining  int           `json:"remaining"`
	Total      int           `json:"total"`
	Fired      int           `json:"fired"`
	Dispatched int           `json:"dispatched"`
	Failed     int           `json:"failed"`
	Synced     bool          `json:"synced"`
	StartedAt  time.Time     `json:"startedAt,omitempty"`
}

// Engine is the playback state machine. It is not safe for concurrent use;
// Runner serializes access to it.
type Engine struct {
	clock Clock
	sink  Sink

	state     State
	pending   []sequence.Entry
	remaining []sequence.Entry
	total     int
	startTime time.Time
	count     int
	outOf     int
	synced    bool

	fired      int
	dispatched int
	failed     int
}

func NewEngine(clock Clock, sink Sink) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{clock: clock, sink: sink}
}

func (e *Engine) State() State { return e.state }

// Play starts running the entries immediately.
func (e *Engine) Play(entries []sequence.Entry) error {
	if e.state != NotRunning {
		return ErrBusy
	}
	e.resetCounters(entries)
	e.start(e.snapshot(entries))
	return nil
}

// PlaySynchronized waits in Countdown until a countdown message with
// count == outOf arrives.
func (e *Engine) PlaySynchronized(entries []sequence.Entry, outOf int) error {
	if e.state != NotRunning {
		return ErrBusy
	}
	if outOf < 1 {
		return fmt.Errorf("countdown needs at least one step, got %d", outOf)
	}
	e.resetCounters(entries)
	e.synced = true
	e.pending = e.snapshot(entries)
	e.count, e.outOf = 0, outOf
	e.setState(Countdown)
	log.Printf("⏳ Waiting for countdown (%d steps, %d entries)", outOf, e.total)
	return nil
}

// Countdown handles a countdown message. It is ignored outside Countdown.
// The message's outOf wins over the requested one since the peer drives the
// count. It reports whether playback started.
func (e *Engine) Countdown(count, outOf int) bool {
	if e.state != Countdown {
		return false
	}
	if outOf > 0 {
		e.outOf = outOf
	}
	e.count = count
	if e.count < e.outOf {
		return false
	}
	pending := e.pending
	e.pending = nil
	e.start(pending)
	return true
}

// Stop drops any pending entries and returns to NotRunning.
func (e *Engine) Stop() {
	if e.state == NotRunning {
		return
	}
	log.Printf("⏹️ Playback stopped (%d of %d entries left)", len(e.remaining)+len(e.pending), e.total)
	e.pending = nil
	e.remaining = nil
	e.setState(NotRunning)
}

// Tick dispatches every entry that is due and returns how many were popped.
func (e *Engine) Tick() int {
	if e.state != Running {
		return 0
	}
	elapsed := timecode.FromDuration(e.clock.Now().Sub(e.startTime))

	popped := 0
	for len(e.remaining) > 0 && e.remaining[0].Start <= elapsed {
		entry := e.remaining[0]
		e.remaining = e.remaining[1:]
		popped++
		e.fired++
		entriesFired.Inc()
		dispatchLateness.Observe(elapsed.Sub(entry.Start).Duration().Seconds())
		e.dispatch(entry)
	}

	if len(e.remaining) == 0 {
		log.Printf("✅ Playback finished: %d commands sent, %d failed", e.dispatched, e.failed)
		e.remaining = nil
		e.setState(NotRunning)
	}
	return popped
}

func (e *Engine) Status() Status {
	st := Status{
		State:      e.state,
		Remaining:  len(e.remaining) + len(e.pending),
		Total:      e.total,
		Fired:      e.fired,
		Dispatched: e.dispatched,
		Failed:     e.failed,
		Synced:     e.synced,
		StartedAt:  e.startTime,
	}
	switch e.state {
	case Countdown:
		st.Count, st.OutOf = e.count, e.outOf
	case Running:
		st.Elapsed = timecode.FromDuration(e.clock.Now().Sub(e.startTime))
	}
	return st
}

// StartedAt is the instant the current run entered Running.
func (e *Engine) StartedAt() time.Time { return e.startTime }

func (e *Engine) start(entries []sequence.Entry) {
	e.remaining = entries
	e.startTime = e.clock.Now()
	e.setState(Running)
	log.Printf("▶️ Playback started: %d entries", len(entries))
}

func (e *Engine) dispatch(entry sequence.Entry) {
	for _, dc := range entry.Commands {
		if e.sink == nil {
			continue
		}
		if err := e.sink.Send(dc.Device, dc.Command); err != nil {
			e.failed++
			dispatchTotal.WithLabelValues("error").Inc()
			log.Printf("⚠️ Dispatch to device %d at %s failed: %v", dc.Device, entry.Start, err)
			continue
		}
		e.dispatched++
		dispatchTotal.WithLabelValues("ok").Inc()
	}
}

func (e *Engine) resetCounters(entries []sequence.Entry) {
	e.total = len(entries)
	e.fired, e.dispatched, e.failed = 0, 0, 0
	e.count, e.outOf = 0, 0
	e.synced = false
	e.startTime = time.Time{}
}

// snapshot copies the entry list so later edits to the caller's slice do not
// reach an active playback.
func (e *Engine) snapshot(entries []sequence.Entry) []sequence.Entry {
	out := make([]sequence.Entry, len(entries))
	for i, en := range entries {
		out[i] = sequence.Entry{Start: en.Start, Commands: append([]sequence.DeviceCommand(nil), en.Commands...)}
	}
	return out
}

func (e *Engine) setState(s State) {
	e.state = s
	playbackState.Set(float64(s))
}
