// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sample

import "math"

// Sample is one decoded accelerometer reading together with the batch
// metadata of the acquisition cycle that produced it.
type Sample struct {
	TimestampUS uint64 `json:"timestamp_us"` // monotonic microseconds

	XG         float64 `json:"x_g"`
	YG         float64 `json:"y_g"`
	ZG         float64 `json:"z_g"`
	MagnitudeG float64 `json:"magnitude_g"`

	// Valid is false when the decode cycle could not produce physically
	// meaningful data. Invalid samples are still stored so sequence
	// numbering stays contiguous; consumers filter on this flag.
	Valid bool `json:"valid"`

	Seq uint32 `json:"sequence_id"`

	Stats BatchStats `json:"stats"`
}

// BatchStats describes the acquisition cycle that produced a sample,
// not the sample itself.
type BatchStats struct {
	FifoLevel       int     `json:"fifo_level"`   // entries left in the sensor queue
	SamplesRead     int     `json:"samples_read"` // raw entries drained this cycle
	ODRHz           float64 `json:"odr_hz"`       // configured output data rate
	BatchIntervalUS float64 `json:"batch_interval_us"`
	SamplesPerSec   float64 `json:"samples_per_second"`
	BatchesPerSec   float64 `json:"batches_per_second"`
}

// Magnitude returns the vector magnitude of an acceleration reading in g.
func Magnitude(xg, yg, zg float64) float64 {
	return math.Sqrt(xg*xg + yg*yg + zg*zg)
}

// SeqDiff returns a-b as a signed distance, correct across uint32
// wraparound. Never compare sequence ids with < directly.
func SeqDiff(a, b uint32) int32 {
	return int32(a - b)
}

// SeqAfter reports whether sequence a was published after b.
func SeqAfter(a, b uint32) bool {
	return SeqDiff(a, b) > 0
}

// SeqGap returns how many samples a reader missed between the last
// sequence it observed and the one it observes now. A gap of zero means
// the reads were contiguous. Returns zero when now is not after last.
func SeqGap(last, now uint32) uint32 {
	d := SeqDiff(now, last)
	if d <= 1 {
		return 0
	}
	return uint32(d - 1)
}
