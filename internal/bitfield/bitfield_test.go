package bitfield

import "testing"

func TestGetStoreBit(t *testing.T) {
	var bm uint32
	for _, pos := range []int{0, 3, 9, 31} {
		bm = StoreBit(bm, pos, true)
		if !GetBit(bm, pos) {
			t.Fatalf("bit %d not set after StoreBit(true)", pos)
		}
		bm = StoreBit(bm, pos, false)
		if GetBit(bm, pos) {
			t.Fatalf("bit %d still set after StoreBit(false)", pos)
		}
	}
}

func TestJoin(t *testing.T) {
	buf := make([]byte, 32)
	n := Join(buf, []int{1, 3, 20})
	if got := string(buf[:n]); got != "1,3,20" {
		t.Fatalf("Join = %q, want %q", got, "1,3,20")
	}
}

func TestJoinTruncates(t *testing.T) {
	buf := make([]byte, 3)
	n := Join(buf, []int{1, 3, 20})
	if n != 3 {
		t.Fatalf("Join wrote %d bytes, want 3 (truncated)", n)
	}
}
