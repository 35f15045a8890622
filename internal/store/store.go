// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"sync/atomic"

	"github.com/relabs-tech/vibration_monitor/internal/sample"
)

// Store is a fixed-capacity ring of samples with a single writer and any
// number of concurrent readers. The writer never blocks and never fails:
// once the ring is full the oldest slot is silently overwritten, and
// readers detect the loss through the sequence ids on the samples they
// receive.
//
// Publication protocol: the writer bumps began before touching a slot and
// count after the slot is fully written, so count is the completion
// marker readers trust. A reader copies first and revalidates with began
// afterwards: slot of push m is only rewritten by push m+capacity, so the
// copy is intact as long as began has not reached m+capacity. On a
// mismatch the reader retries; a push is not expected to race the same
// bounded copy more than once or twice. The write cursor and the 32-bit
// sequence id are both derived from count and can never disagree with it.
type Store struct {
	slots []sample.Sample
	began atomic.Uint64 // pushes started
	count atomic.Uint64 // pushes completed; low 32 bits are the sequence id
}

// Snapshot is the store state captured at one instant.
type Snapshot struct {
	LastSeq    uint32 `json:"last_sequence_id"`
	Count      int    `json:"count"` // samples currently held
	Pushes     uint64 `json:"total_pushes"`
	Overwrites uint64 `json:"overwrites"`
}

// New creates a store holding up to capacity samples. The capacity is
// fixed for the lifetime of the store.
func New(capacity int) *Store {
	if capacity < 1 {
		panic("store: capacity must be at least 1")
	}
	return &Store{slots: make([]sample.Sample, capacity)}
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int { return len(s.slots) }

// Len returns the number of samples currently held.
func (s *Store) Len() int {
	n := s.count.Load()
	if n > uint64(len(s.slots)) {
		return len(s.slots)
	}
	return int(n)
}

// Push stores one sample, assigning it the next sequence id. Writer only:
// at most one goroutine may call Push. It never fails and never blocks.
func (s *Store) Push(smp sample.Sample) {
	n := s.count.Load()
	smp.Seq = uint32(n + 1)
	s.began.Store(n + 1)
	s.slots[n%uint64(len(s.slots))] = smp
	s.count.Store(n + 1)
}

// PeekLatest returns a copy of the most recently pushed sample. The
// second return value is false before the first push ("no data yet", not
// an error). Safe for any number of concurrent callers; never returns a
// torn or partially written sample.
func (s *Store) PeekLatest() (sample.Sample, bool) {
	capacity := uint64(len(s.slots))
	for {
		n := s.count.Load()
		if n == 0 {
			return sample.Sample{}, false
		}
		out := s.slots[(n-1)%capacity]
		// Slot of push n is only rewritten by push n+capacity.
		if s.began.Load() < n+capacity {
			return out, true
		}
	}
}

// CopyRecent returns up to max of the most recent samples, oldest first,
// together with the store state at copy time. Sequence ids in the result
// are strictly contiguous and increasing: pushes racing the copy can
// shorten the result but never tear, duplicate or reorder it. Returns an
// empty slice before the first push.
func (s *Store) CopyRecent(max int) ([]sample.Sample, Snapshot) {
	capacity := uint64(len(s.slots))
	if max <= 0 {
		return nil, s.Snapshot()
	}
	for try := 0; ; try++ {
		p := s.count.Load()
		if p == 0 {
			return nil, snapshotAt(p, int(capacity))
		}
		n := uint64(max)
		if n > capacity {
			n = capacity
		}
		if n > p {
			n = p
		}
		out := make([]sample.Sample, n)
		start := p - n // result covers pushes start+1 .. p
		for i := uint64(0); i < n; i++ {
			out[i] = s.slots[(start+i)%capacity]
		}
		// Oldest copied entry is push start+1; it is intact as long as
		// push start+1+capacity has not begun.
		w := s.began.Load()
		if w <= start+capacity {
			return out, snapshotAt(p, int(capacity))
		}
		if try < 2 {
			continue
		}
		// The writer kept lapping us. Keep the copy but drop the oldest
		// entries it may have reached: push m is suspect once push
		// m+capacity has begun.
		drop := int64(w) - int64(capacity) - int64(start)
		if drop < 0 {
			drop = 0
		}
		if drop > int64(n) {
			drop = int64(n)
		}
		return out[drop:], snapshotAt(p, int(capacity))
	}
}

// Snapshot returns the current store state without copying any samples.
func (s *Store) Snapshot() Snapshot {
	return snapshotAt(s.count.Load(), len(s.slots))
}

// Reset discards all contents and restarts sequence numbering from zero.
// This is the one place where sequence monotonicity breaks; callers other
// than tests should prefer creating a fresh store.
func (s *Store) Reset() {
	s.began.Store(0)
	s.count.Store(0)
}

func snapshotAt(pushes uint64, capacity int) Snapshot {
	snap := Snapshot{
		LastSeq: uint32(pushes),
		Pushes:  pushes,
		Count:   capacity,
	}
	if pushes < uint64(capacity) {
		snap.Count = int(pushes)
	} else {
		snap.Overwrites = pushes - uint64(capacity)
	}
	return snap
}
