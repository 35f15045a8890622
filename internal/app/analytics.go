package app

import (
	"context"
	"log"
	"time"

	"github.com/relabs-tech/vibration_monitor/internal/acquisition"
	"github.com/relabs-tech/vibration_monitor/internal/orientation"
	"github.com/relabs-tech/vibration_monitor/internal/sample"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

// RunAnalytics is the slow background consumer: it polls the latest
// sample at a fixed low rate, derives tilt, and reports throughput. It
// never removes data and happily re-reads the same sample (detected via
// an unchanged sequence id); sequence gaps are informational only.
func RunAnalytics(ctx context.Context, st *store.Store, col *acquisition.Collector, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastSeq   uint32
		haveSeq   bool
		processed uint64
		lostTotal uint64
		lastLog   = time.Now()
	)

	log.Printf("analytics: polling every %s", interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("analytics: stopped (processed=%d, lost=%d)", processed, lostTotal)
			return nil
		case <-ticker.C:
		}

		smp, ok := st.PeekLatest()
		if !ok {
			continue // no data yet
		}
		if haveSeq && smp.Seq == lastSeq {
			continue // nothing new since the last poll
		}
		if haveSeq {
			if gap := sample.SeqGap(lastSeq, smp.Seq); gap > 0 {
				lostTotal += uint64(gap)
			}
		}
		lastSeq = smp.Seq
		haveSeq = true
		processed++

		if !smp.Valid {
			continue
		}

		if time.Since(lastLog) >= time.Second {
			tilt := orientation.FromAccel(smp.XG, smp.YG, smp.ZG)
			sps, bps := col.Throughput()
			log.Printf("analytics: |g|=%.3f roll=%.1f pitch=%.1f seq=%d fifo=%d | %.1f samples/s %.1f batches/s",
				smp.MagnitudeG, tilt.Roll, tilt.Pitch, smp.Seq, smp.Stats.FifoLevel, sps, bps)

			// Flag throughput drifting away from the configured rate.
			odr := col.ConfiguredRate()
			if odr > 0 && (sps > odr*1.1 || sps < odr*0.1) {
				log.Printf("analytics: unexpected sample throughput: %.1f samples/s (expected %.1f)", sps, odr)
			}
			lastLog = time.Now()
		}
	}
}
