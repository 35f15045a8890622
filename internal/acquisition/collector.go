// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package acquisition

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/vibration_monitor/internal/sample"
	"github.com/relabs-tech/vibration_monitor/internal/sensors"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

// ErrNotReady is returned when an operation runs before the collector is
// wired up. This is a programming error, not a runtime condition.
var ErrNotReady = errors.New("acquisition: not initialized")

// Clock returns monotonic microseconds. Injected so the statistics
// window can be driven from a replayed trace in tests.
type Clock func() uint64

var processStart = time.Now()

func monotonicMicros() uint64 {
	return uint64(time.Since(processStart).Microseconds())
}

// statsWindowUS is the reporting window for throughput statistics.
const statsWindowUS = 1_000_000

// Collector drives one decode cycle per call: it pulls a batch from the
// decoder, derives timestamp and magnitude, pushes the sample and keeps
// rolling throughput statistics. Single goroutine only; the acquisition
// loop owns it.
type Collector struct {
	dec   sensors.Decoder
	st    *store.Store
	clock Clock

	windowStartUS uint64
	batchCount    uint64
	itemAccum     uint64

	mu            sync.RWMutex // guards the published throughput pair
	samplesPerSec float64
	batchesPerSec float64
}

// NewCollector wires a decoder to a store. A nil clock selects the
// process monotonic clock.
func NewCollector(dec sensors.Decoder, st *store.Store, clock Clock) *Collector {
	if clock == nil {
		clock = monotonicMicros
	}
	return &Collector{
		dec:           dec,
		st:            st,
		clock:         clock,
		windowStartUS: clock(),
		samplesPerSec: dec.ConfiguredRate(), // placeholder until the first window closes
	}
}

// RunCycle performs one acquisition cycle. On decode failure nothing is
// pushed and no counters move; the caller applies backoff and retries.
func (c *Collector) RunCycle() error {
	if c == nil || c.dec == nil || c.st == nil {
		return ErrNotReady
	}

	batch, err := c.dec.ReadBatch()
	if err != nil {
		return fmt.Errorf("acquisition: decode cycle: %w", err)
	}

	now := c.clock()
	c.batchCount++
	c.itemAccum += uint64(batch.ItemsDrained)

	// Close the reporting window on the sample timestamp, not wall-clock
	// read time, so statistics replay deterministically from a trace.
	if now-c.windowStartUS >= statsWindowUS {
		elapsed := float64(now-c.windowStartUS) / 1e6
		c.mu.Lock()
		c.samplesPerSec = float64(c.itemAccum) / elapsed
		c.batchesPerSec = float64(c.batchCount) / elapsed
		c.mu.Unlock()
		c.windowStartUS = now
		c.batchCount = 0
		c.itemAccum = 0
	}

	sps, bps := c.Throughput()
	c.st.Push(sample.Sample{
		TimestampUS: now,
		XG:          batch.XG,
		YG:          batch.YG,
		ZG:          batch.ZG,
		MagnitudeG:  sample.Magnitude(batch.XG, batch.YG, batch.ZG),
		Valid:       batch.Valid,
		Stats: sample.BatchStats{
			FifoLevel:       batch.FifoRemaining,
			SamplesRead:     batch.ItemsDrained,
			ODRHz:           batch.RateHz,
			BatchIntervalUS: batch.SpanUS,
			SamplesPerSec:   sps,
			BatchesPerSec:   bps,
		},
	})
	return nil
}

// Throughput returns the rates computed when the last reporting window
// closed. Safe for concurrent callers.
func (c *Collector) Throughput() (samplesPerSec, batchesPerSec float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.samplesPerSec, c.batchesPerSec
}

// ConfiguredRate reports the decoder's nominal output data rate.
func (c *Collector) ConfiguredRate() float64 { return c.dec.ConfiguredRate() }

// Watermark reports the decoder's FIFO watermark.
func (c *Collector) Watermark() int { return c.dec.Watermark() }
