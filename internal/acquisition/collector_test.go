package acquisition

import (
	"errors"
	"math"
	"testing"

	"github.com/relabs-tech/vibration_monitor/internal/sensors"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

// scriptedDecoder replays a fixed list of results, one per cycle.
type scriptedDecoder struct {
	batches []sensors.Batch
	errs    []error
	i       int
	rate    float64
	wm      int
}

func (d *scriptedDecoder) ReadBatch() (sensors.Batch, error) {
	if d.i >= len(d.batches) {
		return sensors.Batch{}, errors.New("script exhausted")
	}
	b, err := d.batches[d.i], d.errs[d.i]
	d.i++
	return b, err
}

func (d *scriptedDecoder) ConfiguredRate() float64 { return d.rate }
func (d *scriptedDecoder) Watermark() int          { return d.wm }

// fakeClock steps by a fixed increment per call, starting at zero on the
// constructor's initial read.
type fakeClock struct {
	now  uint64
	step uint64
}

func (c *fakeClock) read() uint64 {
	n := c.now
	c.now += c.step
	return n
}

func script(n int, b sensors.Batch) *scriptedDecoder {
	d := &scriptedDecoder{rate: 1000, wm: 100}
	for i := 0; i < n; i++ {
		d.batches = append(d.batches, b)
		d.errs = append(d.errs, nil)
	}
	return d
}

// Ten cycles 100 ms apart with 100 items drained each close the 1 s
// window on the tenth cycle at exactly 1000 samples/s and 10 batches/s.
func TestStatsWindow(t *testing.T) {
	dec := script(10, sensors.Batch{Valid: true, ItemsDrained: 100, RateHz: 1000})
	st := store.New(16)
	clk := &fakeClock{step: 100_000}
	c := NewCollector(dec, st, clk.read)

	for i := 0; i < 10; i++ {
		if err := c.RunCycle(); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	sps, bps := c.Throughput()
	if math.Abs(sps-1000.0) > 1e-9 {
		t.Fatalf("samples/s = %f, want 1000", sps)
	}
	if math.Abs(bps-10.0) > 1e-9 {
		t.Fatalf("batches/s = %f, want 10", bps)
	}

	// The closing cycle's sample carries the freshly computed rates.
	latest, ok := st.PeekLatest()
	if !ok {
		t.Fatal("no sample after 10 cycles")
	}
	if latest.Stats.SamplesPerSec != sps || latest.Stats.BatchesPerSec != bps {
		t.Fatalf("sample stats %+v do not match collector", latest.Stats)
	}
}

func TestWindowResetsAccumulators(t *testing.T) {
	dec := script(20, sensors.Batch{Valid: true, ItemsDrained: 50})
	st := store.New(32)
	clk := &fakeClock{step: 100_000}
	c := NewCollector(dec, st, clk.read)

	for i := 0; i < 20; i++ {
		if err := c.RunCycle(); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	sps, bps := c.Throughput()
	// Second window must not double-count the first.
	if math.Abs(sps-500.0) > 1e-9 || math.Abs(bps-10.0) > 1e-9 {
		t.Fatalf("second window: %f samples/s, %f batches/s", sps, bps)
	}
}

func TestSampleDerivation(t *testing.T) {
	dec := script(1, sensors.Batch{
		XG: 3, YG: 4, ZG: 0, Valid: true,
		ItemsDrained: 64, FifoRemaining: 7, RateHz: 26667, SpanUS: 2400,
	})
	st := store.New(4)
	clk := &fakeClock{now: 500, step: 10}
	c := NewCollector(dec, st, clk.read)

	if err := c.RunCycle(); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	smp, ok := st.PeekLatest()
	if !ok {
		t.Fatal("nothing pushed")
	}
	if smp.MagnitudeG != 5 {
		t.Fatalf("magnitude=%f", smp.MagnitudeG)
	}
	if smp.TimestampUS != 510 { // constructor consumed the first tick
		t.Fatalf("timestamp=%d", smp.TimestampUS)
	}
	if smp.Stats.FifoLevel != 7 || smp.Stats.SamplesRead != 64 || smp.Stats.BatchIntervalUS != 2400 {
		t.Fatalf("bad batch stats: %+v", smp.Stats)
	}
	if smp.Seq != 1 {
		t.Fatalf("seq=%d", smp.Seq)
	}
}

// Invalid readings are still pushed so sequence numbering stays
// contiguous; consumers filter on the Valid flag.
func TestInvalidSamplePushed(t *testing.T) {
	dec := script(2, sensors.Batch{Valid: false, ItemsDrained: 0})
	st := store.New(4)
	c := NewCollector(dec, st, (&fakeClock{step: 10}).read)

	for i := 0; i < 2; i++ {
		if err := c.RunCycle(); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	smp, _ := st.PeekLatest()
	if smp.Valid || smp.Seq != 2 {
		t.Fatalf("invalid sample handling: %+v", smp)
	}
}

// Decode failures must leave the store and counters untouched.
func TestDecodeFailureTouchesNothing(t *testing.T) {
	dec := &scriptedDecoder{rate: 1000, wm: 100}
	ok := sensors.Batch{Valid: true, ItemsDrained: 10}
	dec.batches = []sensors.Batch{ok, {}, {}, {}, ok}
	dec.errs = []error{nil, errors.New("bus error"), errors.New("bus error"), errors.New("bus error"), nil}

	st := store.New(8)
	c := NewCollector(dec, st, (&fakeClock{step: 10}).read)

	if err := c.RunCycle(); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	before, _ := st.PeekLatest()

	for i := 0; i < 3; i++ {
		if err := c.RunCycle(); err == nil {
			t.Fatalf("failure cycle %d did not error", i)
		}
		after, _ := st.PeekLatest()
		if after.Seq != before.Seq {
			t.Fatalf("failed cycle advanced sequence: %d -> %d", before.Seq, after.Seq)
		}
	}

	if err := c.RunCycle(); err != nil {
		t.Fatalf("recovery cycle: %v", err)
	}
	after, _ := st.PeekLatest()
	if after.Seq != before.Seq+1 {
		t.Fatalf("recovery pushed seq %d, want %d", after.Seq, before.Seq+1)
	}
}
