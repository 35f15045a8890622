// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"
)

type mockSource struct {
	start     time.Time
	rateHz    float64
	watermark int
}

// NewMockSource creates a decoder that generates smooth synthetic
// vibration batches: a small oscillation on X/Y riding on 1 g of Z.
// Useful for development without hardware attached.
func NewMockSource(rateHz float64, watermark int) Decoder {
	return &mockSource{start: time.Now(), rateHz: rateHz, watermark: watermark}
}

func (m *mockSource) ConfiguredRate() float64 { return m.rateHz }
func (m *mockSource) Watermark() int          { return m.watermark }

func (m *mockSource) ReadBatch() (Batch, error) {
	elapsed := time.Since(m.start).Seconds()
	return Batch{
		XG:            0.02 * math.Sin(2*math.Pi*3*elapsed),
		YG:            0.015 * math.Cos(2*math.Pi*5*elapsed),
		ZG:            1.0 + 0.01*math.Sin(2*math.Pi*7*elapsed),
		Valid:         true,
		ItemsDrained:  m.watermark,
		FifoRemaining: m.watermark / 4,
		RateHz:        m.rateHz,
		SpanUS:        float64(m.watermark) * 1e6 / m.rateHz,
	}, nil
}
