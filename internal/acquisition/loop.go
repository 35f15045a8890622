package acquisition

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// State is the acquisition loop lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateRunning
	StateFaulting
	StateShuttingDown
	StateStopped
)

var stateNames = [...]string{
	"uninitialized", "ready", "running", "faulting", "shutting-down", "stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Loop schedules one acquisition cycle per fixed period. Deadlines are
// absolute so jitter in a single cycle does not accumulate as drift. A
// failed cycle moves the loop to Faulting for one backoff interval and
// contributes no sample; the store and counters are untouched.
type Loop struct {
	col     *Collector
	period  time.Duration
	backoff time.Duration
	state   atomic.Int32
}

// NewLoop creates a loop in the Ready state. A zero period derives the
// cycle time from the decoder configuration (one watermark's worth of
// samples per cycle).
func NewLoop(col *Collector, period, backoff time.Duration) *Loop {
	if period <= 0 {
		period = derivePeriod(col)
	}
	if backoff <= 0 {
		backoff = 5 * time.Millisecond
	}
	l := &Loop{col: col, period: period, backoff: backoff}
	l.state.Store(int32(StateReady))
	return l
}

func derivePeriod(col *Collector) time.Duration {
	rate := col.ConfiguredRate()
	wm := col.Watermark()
	if rate <= 0 || wm <= 0 {
		return time.Millisecond
	}
	p := time.Duration(float64(wm) / rate * float64(time.Second))
	if p < 100*time.Microsecond {
		p = 100 * time.Microsecond
	}
	return p
}

// State returns the current lifecycle state. Safe for concurrent callers.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Period returns the cycle period in effect.
func (l *Loop) Period() time.Duration { return l.period }

// Run drives the loop until ctx is cancelled. It can run once: a stopped
// loop stays Stopped and the store retains its last contents for any
// consumer still draining it.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateReady), int32(StateRunning)) {
		return fmt.Errorf("%w: loop is %s, want ready", ErrNotReady, l.State())
	}
	log.Printf("acquisition: loop running (period=%s, backoff=%s)", l.period, l.backoff)

	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			l.stop()
			return nil
		default:
		}

		if err := l.col.RunCycle(); err != nil {
			l.state.Store(int32(StateFaulting))
			log.Printf("acquisition: cycle failed, retrying in %s: %v", l.backoff, err)
			timer.Reset(l.backoff)
			select {
			case <-ctx.Done():
				l.stop()
				return nil
			case <-timer.C:
			}
			l.state.Store(int32(StateRunning))
		}

		next = next.Add(l.period)
		wait := time.Until(next)
		if wait <= 0 {
			// Behind schedule; run the next cycle immediately but keep
			// the deadline grid anchored to now so backlog never grows
			// without bound.
			if wait < -10*l.period {
				next = time.Now()
			}
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			l.stop()
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) stop() {
	l.state.Store(int32(StateShuttingDown))
	log.Printf("acquisition: loop stopping")
	l.state.Store(int32(StateStopped))
}
