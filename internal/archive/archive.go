// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relabs-tech/vibration_monitor/internal/sample"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	sequence_id       INTEGER PRIMARY KEY,
	timestamp_us      INTEGER NOT NULL,
	x_g               REAL NOT NULL,
	y_g               REAL NOT NULL,
	z_g               REAL NOT NULL,
	magnitude_g       REAL NOT NULL,
	valid             INTEGER NOT NULL,
	fifo_level        INTEGER NOT NULL,
	samples_read      INTEGER NOT NULL,
	odr_hz            REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON samples(timestamp_us);
`

// Archiver is the bulk-export consumer: at a slow fixed rate it copies
// the recent window from the store and persists every sample it has not
// seen yet. It tracks its position with the sample sequence ids, so a
// buffer overwrite shows up as a sequence gap that is counted and
// logged, never treated as an error.
type Archiver struct {
	db       *sql.DB
	st       *store.Store
	interval time.Duration
	batchMax int

	lastSeen uint32
	haveSeen bool
	lost     uint64
}

// Open creates (or reopens) the archive database at path.
func Open(path string, st *store.Store, interval time.Duration, batchMax int) (*Archiver, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}
	if batchMax <= 0 {
		batchMax = st.Cap()
	}
	if interval <= 0 {
		interval = time.Second
	}
	log.Printf("archive: database %s ready (interval=%s, batch=%d)", path, interval, batchMax)
	return &Archiver{db: db, st: st, interval: interval, batchMax: batchMax}, nil
}

// Run drains the store until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One final drain so shutdown does not lose the tail.
			if err := a.DrainOnce(); err != nil {
				log.Printf("archive: final drain: %v", err)
			}
			log.Printf("archive: stopped (lost %d samples to overwrite in total)", a.lost)
			return nil
		case <-ticker.C:
			if err := a.DrainOnce(); err != nil {
				log.Printf("archive: drain: %v", err)
			}
		}
	}
}

// DrainOnce copies the recent window and persists the samples newer than
// the archiver's cursor. Exposed for the shutdown path and for tests.
func (a *Archiver) DrainOnce() error {
	window, _ := a.st.CopyRecent(a.batchMax)
	if len(window) == 0 {
		return nil
	}

	// Skip everything already archived.
	fresh := window
	if a.haveSeen {
		i := 0
		for i < len(fresh) && !sample.SeqAfter(fresh[i].Seq, a.lastSeen) {
			i++
		}
		fresh = fresh[i:]
	}
	if len(fresh) == 0 {
		return nil
	}

	if a.haveSeen {
		if gap := sample.SeqGap(a.lastSeen, fresh[0].Seq); gap > 0 {
			a.lost += uint64(gap)
			log.Printf("archive: fell behind the overwrite horizon, %d samples lost (seq %d -> %d)",
				gap, a.lastSeen, fresh[0].Seq)
		}
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO samples
		(sequence_id, timestamp_us, x_g, y_g, z_g, magnitude_g, valid, fifo_level, samples_read, odr_hz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("archive: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range fresh {
		if _, err := stmt.Exec(
			int64(s.Seq), int64(s.TimestampUS),
			s.XG, s.YG, s.ZG, s.MagnitudeG,
			s.Valid,
			s.Stats.FifoLevel, s.Stats.SamplesRead, s.Stats.ODRHz,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("archive: insert seq %d: %w", s.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}

	a.lastSeen = fresh[len(fresh)-1].Seq
	a.haveSeen = true
	return nil
}

// Lost reports how many samples the archiver missed to buffer overwrite.
func (a *Archiver) Lost() uint64 { return a.lost }

// Close closes the underlying database.
func (a *Archiver) Close() error {
	return a.db.Close()
}
