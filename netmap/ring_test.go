// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import "testing"

func TestRingHeaderRoundTrip(t *testing.T) {
	r, _ := NewSyntheticRing(8, 64)

	if got := r.NumSlots(); got != 8 {
		t.Fatalf("NumSlots() = %d, want 8", got)
	}

	r.SetHead(3)
	r.SetCur(5)
	if got := r.Head(); got != 3 {
		t.Errorf("Head() = %d, want 3", got)
	}
	if got := r.Cur(); got != 5 {
		t.Errorf("Cur() = %d, want 5", got)
	}
}

func TestRingNext(t *testing.T) {
	r, _ := NewSyntheticRing(4, 64)
	if got := r.Next(3); got != 0 {
		t.Errorf("Next(3) = %d, want 0 (wrap)", got)
	}
	if got := r.Next(1); got != 2 {
		t.Errorf("Next(1) = %d, want 2", got)
	}
}

func TestRingSpace(t *testing.T) {
	r, _ := NewSyntheticRing(8, 64)

	// head/cur at 2, tail at 6: 4 slots available.
	r.setU32(ringHdrCur, 2)
	r.setU32(ringHdrTail, 6)
	if got := r.Space(); got != 4 {
		t.Errorf("Space() = %d, want 4", got)
	}

	// wraparound: cur near the end, tail near the start.
	r.setU32(ringHdrCur, 7)
	r.setU32(ringHdrTail, 1)
	if got := r.Space(); got != 2 {
		t.Errorf("Space() (wrapped) = %d, want 2", got)
	}
}

func TestRingSlotFields(t *testing.T) {
	r, _ := NewSyntheticRing(4, 64)

	r.SetLen(2, 42)
	if got := r.Len(2); got != 42 {
		t.Errorf("Len(2) = %d, want 42", got)
	}

	r.OrSlotFlags(2, SlotBufChanged)
	if got := r.SlotFlags(2); got&SlotBufChanged == 0 {
		t.Errorf("SlotFlags(2) = %#x, want SlotBufChanged set", got)
	}

	r.OrSlotFlags(2, 0x2)
	if got := r.SlotFlags(2); got&SlotBufChanged == 0 {
		t.Errorf("OrSlotFlags clobbered existing flags: got %#x", got)
	}
}

func TestRingBufferContent(t *testing.T) {
	r, _ := NewSyntheticRing(4, 16)

	payload := []byte("hello, packet!!!")[:16]
	buf := r.Buffer(1)
	r.SetLen(1, uint16(len(payload)))
	copy(buf[:cap(buf)], payload)
	// Buffer() truncates to Len(), so re-fetch after SetLen.
	got := r.Buffer(1)
	if string(got) != string(payload) {
		t.Errorf("Buffer(1) = %q, want %q", got, payload)
	}
}

func TestRingSwapBufIdx(t *testing.T) {
	rx, _ := NewSyntheticRing(4, 16)
	tx, _ := NewSyntheticRing(4, 16)

	rxIdx := rx.BufIdx(0)
	txIdx := tx.BufIdx(0)

	rx.SetBufIdx(0, txIdx)
	tx.SetBufIdx(0, rxIdx)

	if rx.BufIdx(0) != txIdx || tx.BufIdx(0) != rxIdx {
		t.Fatalf("buffer index swap failed: rx=%d tx=%d", rx.BufIdx(0), tx.BufIdx(0))
	}
}
