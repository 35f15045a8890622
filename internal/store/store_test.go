package store

import (
	"reflect"
	"testing"

	"github.com/relabs-tech/vibration_monitor/internal/sample"
)

func pushN(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		s.Push(sample.Sample{
			TimestampUS: uint64(i) * 100,
			XG:          float64(i),
			YG:          float64(i) * 2,
			ZG:          1.0,
			MagnitudeG:  sample.Magnitude(float64(i), float64(i)*2, 1.0),
			Valid:       true,
		})
	}
}

func TestPeekLatestEmpty(t *testing.T) {
	s := New(8)
	if _, ok := s.PeekLatest(); ok {
		t.Fatal("PeekLatest on empty store reported data")
	}
	if got, _ := s.CopyRecent(4); len(got) != 0 {
		t.Fatalf("CopyRecent on empty store returned %d samples", len(got))
	}
}

func TestPeekLatestTracksNewest(t *testing.T) {
	s := New(4)
	for i := 1; i <= 10; i++ {
		s.Push(sample.Sample{TimestampUS: uint64(i)})
		got, ok := s.PeekLatest()
		if !ok {
			t.Fatalf("push %d: no data", i)
		}
		if got.Seq != uint32(i) || got.TimestampUS != uint64(i) {
			t.Fatalf("push %d: got seq=%d ts=%d", i, got.Seq, got.TimestampUS)
		}
	}
}

func TestPeekLatestIdempotent(t *testing.T) {
	s := New(4)
	pushN(t, s, 3)
	a, _ := s.PeekLatest()
	b, _ := s.PeekLatest()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("repeated PeekLatest without a push differs: %+v vs %+v", a, b)
	}
}

func TestCopyRecentBeforeFull(t *testing.T) {
	s := New(8)
	pushN(t, s, 3)
	got, snap := s.CopyRecent(8)
	if len(got) != 3 {
		t.Fatalf("want 3 samples, got %d", len(got))
	}
	for i, smp := range got {
		if smp.Seq != uint32(i+1) {
			t.Fatalf("entry %d: seq=%d", i, smp.Seq)
		}
	}
	if snap.LastSeq != 3 || snap.Count != 3 || snap.Pushes != 3 || snap.Overwrites != 0 {
		t.Fatalf("bad snapshot: %+v", snap)
	}
}

// After N+k pushes into a store of capacity N, CopyRecent(N) must return
// exactly the last N samples in push order with contiguous sequence ids.
func TestCopyRecentAfterWrap(t *testing.T) {
	const capacity = 8
	for _, extra := range []int{0, 1, capacity - 1, capacity, 5 * capacity} {
		s := New(capacity)
		total := capacity + extra
		pushN(t, s, total)

		got, snap := s.CopyRecent(capacity)
		if len(got) != capacity {
			t.Fatalf("extra=%d: want %d samples, got %d", extra, capacity, len(got))
		}
		for i, smp := range got {
			want := uint32(total - capacity + i + 1)
			if smp.Seq != want {
				t.Fatalf("extra=%d entry %d: seq=%d want %d", extra, i, smp.Seq, want)
			}
		}
		if snap.Overwrites != uint64(extra) {
			t.Fatalf("extra=%d: overwrites=%d", extra, snap.Overwrites)
		}
	}
}

func TestCopyRecentMaxCount(t *testing.T) {
	s := New(16)
	pushN(t, s, 16)
	got, _ := s.CopyRecent(5)
	if len(got) != 5 {
		t.Fatalf("want 5 samples, got %d", len(got))
	}
	if got[0].Seq != 12 || got[4].Seq != 16 {
		t.Fatalf("wrong window: first=%d last=%d", got[0].Seq, got[4].Seq)
	}
	if got, _ := s.CopyRecent(0); got != nil {
		t.Fatalf("CopyRecent(0) returned %d samples", len(got))
	}
}

func TestLenAndCap(t *testing.T) {
	s := New(4)
	if s.Cap() != 4 || s.Len() != 0 {
		t.Fatalf("fresh store: cap=%d len=%d", s.Cap(), s.Len())
	}
	pushN(t, s, 2)
	if s.Len() != 2 {
		t.Fatalf("len=%d after 2 pushes", s.Len())
	}
	pushN(t, s, 10)
	if s.Len() != 4 {
		t.Fatalf("len=%d after wrap", s.Len())
	}
}

func TestReset(t *testing.T) {
	s := New(4)
	pushN(t, s, 7)
	s.Reset()
	if _, ok := s.PeekLatest(); ok {
		t.Fatal("data visible after Reset")
	}
	s.Push(sample.Sample{TimestampUS: 1})
	got, _ := s.PeekLatest()
	if got.Seq != 1 {
		t.Fatalf("sequence did not restart: %d", got.Seq)
	}
}

// A reader that last saw sequence L and next observes sequence M must be
// able to compute the number of samples it missed in between.
func TestGapDetection(t *testing.T) {
	const capacity = 8
	s := New(capacity)
	pushN(t, s, 5)
	latest, _ := s.PeekLatest()
	lastSeen := latest.Seq // 5

	pushN(t, s, capacity) // overwrite everything the reader has seen
	latest, _ = s.PeekLatest()
	if got := sample.SeqGap(lastSeen, latest.Seq); got != capacity-1 {
		t.Fatalf("gap=%d, want %d", got, capacity-1)
	}

	// Contiguous reads have no gap.
	if got := sample.SeqGap(latest.Seq, latest.Seq+1); got != 0 {
		t.Fatalf("contiguous gap=%d", got)
	}
	// Re-reading the same sample has no gap either.
	if got := sample.SeqGap(latest.Seq, latest.Seq); got != 0 {
		t.Fatalf("duplicate gap=%d", got)
	}
}

func TestCapacityOne(t *testing.T) {
	s := New(1)
	pushN(t, s, 3)
	got, ok := s.PeekLatest()
	if !ok || got.Seq != 3 {
		t.Fatalf("capacity-1 store: ok=%v seq=%d", ok, got.Seq)
	}
	recent, _ := s.CopyRecent(10)
	if len(recent) != 1 || recent[0].Seq != 3 {
		t.Fatalf("capacity-1 CopyRecent: %+v", recent)
	}
}
