package sample

import (
	"math"
	"testing"
)

func TestMagnitude(t *testing.T) {
	if got := Magnitude(0, 0, 1); got != 1 {
		t.Fatalf("unit z: %f", got)
	}
	if got := Magnitude(3, 4, 0); got != 5 {
		t.Fatalf("3-4-5: %f", got)
	}
	want := math.Sqrt(3 * 0.5 * 0.5)
	if got := Magnitude(0.5, 0.5, 0.5); math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %f want %f", got, want)
	}
}

func TestSeqDiffWraparound(t *testing.T) {
	cases := []struct {
		a, b uint32
		want int32
	}{
		{5, 3, 2},
		{3, 5, -2},
		{7, 7, 0},
		{2, math.MaxUint32, 3},      // wrapped forward across 2^32
		{math.MaxUint32 - 1, 3, -5}, // b is the newer one
	}
	for _, c := range cases {
		if got := SeqDiff(c.a, c.b); got != c.want {
			t.Errorf("SeqDiff(%d,%d)=%d want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestSeqAfter(t *testing.T) {
	if !SeqAfter(1, math.MaxUint32) {
		t.Fatal("wrap: 1 should be after MaxUint32")
	}
	if SeqAfter(math.MaxUint32, 1) {
		t.Fatal("wrap: MaxUint32 should not be after 1")
	}
	if SeqAfter(9, 9) {
		t.Fatal("equal is not after")
	}
}

func TestSeqGap(t *testing.T) {
	if got := SeqGap(2, 3); got != 0 {
		t.Fatalf("contiguous: %d", got)
	}
	if got := SeqGap(2, 2); got != 0 {
		t.Fatalf("duplicate read: %d", got)
	}
	if got := SeqGap(2, 10); got != 7 {
		t.Fatalf("lost 3..9: %d", got)
	}
	// Across the 32-bit wrap.
	if got := SeqGap(math.MaxUint32-1, 2); got != 3 {
		t.Fatalf("wrap gap: %d", got)
	}
}
