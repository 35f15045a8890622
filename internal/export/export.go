// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/relabs-tech/vibration_monitor/internal/sample"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

const gToMS2 = 9.80665

// Envelope is the JSON export shape: samples oldest-to-newest plus the
// store state captured when the window was copied.
type Envelope struct {
	Samples     []sample.Sample `json:"samples"`
	SampleCount int             `json:"sample_count"`
	Store       store.Snapshot  `json:"store"`
}

// WriteJSON renders a copied sample window as a JSON document.
func WriteJSON(w io.Writer, samples []sample.Sample, snap store.Snapshot) error {
	env := Envelope{Samples: samples, SampleCount: len(samples), Store: snap}
	if env.Samples == nil {
		env.Samples = []sample.Sample{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}

// CSVHeader is the column set of the CSV export, in order.
var CSVHeader = []string{
	"timestamp_us", "sequence_id",
	"x_g", "y_g", "z_g", "magnitude_g",
	"x_ms2", "y_ms2", "z_ms2", "magnitude_ms2",
	"valid",
	"fifo_level", "samples_read", "odr_hz", "batch_interval_us", "samples_per_second",
}

// WriteCSV renders a copied sample window as CSV with a header row.
func WriteCSV(w io.Writer, samples []sample.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatUint(s.TimestampUS, 10),
			strconv.FormatUint(uint64(s.Seq), 10),
			ftoa(s.XG, 5), ftoa(s.YG, 5), ftoa(s.ZG, 5), ftoa(s.MagnitudeG, 5),
			ftoa(s.XG*gToMS2, 5), ftoa(s.YG*gToMS2, 5), ftoa(s.ZG*gToMS2, 5), ftoa(s.MagnitudeG*gToMS2, 5),
			strconv.FormatBool(s.Valid),
			strconv.Itoa(s.Stats.FifoLevel),
			strconv.Itoa(s.Stats.SamplesRead),
			ftoa(s.Stats.ODRHz, 2),
			ftoa(s.Stats.BatchIntervalUS, 2),
			ftoa(s.Stats.SamplesPerSec, 2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

func ftoa(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
