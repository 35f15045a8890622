package acquisition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/vibration_monitor/internal/sensors"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

type steadyDecoder struct{ fail bool }

func (d *steadyDecoder) ReadBatch() (sensors.Batch, error) {
	if d.fail {
		return sensors.Batch{}, errors.New("sensor offline")
	}
	return sensors.Batch{Valid: true, ItemsDrained: 4, RateHz: 1000}, nil
}
func (d *steadyDecoder) ConfiguredRate() float64 { return 1000 }
func (d *steadyDecoder) Watermark() int          { return 4 }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestLoopRunsAndStops(t *testing.T) {
	st := store.New(64)
	col := NewCollector(&steadyDecoder{}, st, nil)
	l := NewLoop(col, time.Millisecond, time.Millisecond)

	if l.State() != StateReady {
		t.Fatalf("fresh loop state: %s", l.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return st.Len() >= 5 })
	if l.State() != StateRunning {
		t.Fatalf("loop state while producing: %s", l.State())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if l.State() != StateStopped {
		t.Fatalf("state after shutdown: %s", l.State())
	}

	// Shutdown retains the store contents for consumers still draining.
	if st.Len() == 0 {
		t.Fatal("store cleared on shutdown")
	}
}

func TestLoopFaultingKeepsStoreUntouched(t *testing.T) {
	st := store.New(8)
	col := NewCollector(&steadyDecoder{fail: true}, st, nil)
	l := NewLoop(col, time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// Backoff is long enough that the Faulting state is observable.
	waitFor(t, time.Second, func() bool { return l.State() == StateFaulting })

	// Give it a few fault/retry rounds; the store must stay empty and
	// the loop must never reach Stopped on its own.
	time.Sleep(80 * time.Millisecond)
	if _, ok := st.PeekLatest(); ok {
		t.Fatal("failed cycles pushed data")
	}
	if s := l.State(); s != StateFaulting && s != StateRunning {
		t.Fatalf("loop left the fault/retry cycle: %s", s)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if l.State() != StateStopped {
		t.Fatalf("state after shutdown: %s", l.State())
	}
}

func TestLoopRunsOnlyOnce(t *testing.T) {
	st := store.New(8)
	col := NewCollector(&steadyDecoder{}, st, nil)
	l := NewLoop(col, time.Millisecond, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("second run: %v, want ErrNotReady", err)
	}
}

func TestDerivedPeriod(t *testing.T) {
	st := store.New(8)
	col := NewCollector(&steadyDecoder{}, st, nil)
	l := NewLoop(col, 0, 0)
	// 4 samples per cycle at 1 kHz is a 4 ms cycle.
	if got := l.Period(); got != 4*time.Millisecond {
		t.Fatalf("derived period %s, want 4ms", got)
	}
}
