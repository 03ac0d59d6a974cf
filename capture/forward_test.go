// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import (
	"errors"
	"testing"

	"github.com/go-netmap/nmcapture/netmap"
)

func TestForwardSlotSwapsBufferIndices(t *testing.T) {
	dst := newTestDevice("eth1", 2, 8, 64)
	setRingTail(dst.Rings[0].TX, 8)

	rx, _ := netmap.NewSyntheticRing(8, 64)

	rxBuf := rx.BufIdx(3)
	txBuf := dst.Rings[0].TX.BufIdx(0)

	if err := forwardSlot(dst, 0, rx, 3, nil); err != nil {
		t.Fatalf("forwardSlot: %v", err)
	}

	if rx.BufIdx(3) != txBuf {
		t.Errorf("rx slot did not receive tx ring's buffer: got %d, want %d", rx.BufIdx(3), txBuf)
	}
	if dst.Rings[0].TX.BufIdx(0) != rxBuf {
		t.Errorf("tx slot did not receive rx ring's buffer: got %d, want %d", dst.Rings[0].TX.BufIdx(0), rxBuf)
	}
	if got := dst.Rings[0].TX.Cur(); got != 1 {
		t.Errorf("TX.Cur() = %d, want 1", got)
	}
	if rx.SlotFlags(3)&netmap.SlotBufChanged == 0 {
		t.Error("rx slot missing SlotBufChanged after swap")
	}
}

func TestForwardSlotRingSelectionWraps(t *testing.T) {
	dst := newTestDevice("eth1", 3, 8, 64)
	for _, rh := range dst.Rings {
		setRingTail(rh.TX, 8)
	}
	rx, _ := netmap.NewSyntheticRing(8, 64)

	// srcRingID 4 on a 3-ring destination should land on ring 1.
	if err := forwardSlot(dst, 4, rx, 0, nil); err != nil {
		t.Fatalf("forwardSlot: %v", err)
	}
	if dst.Rings[1].TX.Cur() != 1 {
		t.Errorf("expected ring 1 to receive the forwarded slot, Cur() = %d", dst.Rings[1].TX.Cur())
	}
	if dst.Rings[0].TX.Cur() != 0 || dst.Rings[2].TX.Cur() != 0 {
		t.Error("forwardSlot touched the wrong destination ring")
	}
}

func TestForwardSlotTxRingFull(t *testing.T) {
	dst := newTestDevice("eth1", 1, 8, 64)
	// Tail left at zero: Space() == 0, ring is full.

	rx, _ := netmap.NewSyntheticRing(8, 64)
	livedev := NewLivedev("eth1")

	err := forwardSlot(dst, 0, rx, 0, livedev)
	if !errors.Is(err, ErrTxRingFull) {
		t.Fatalf("forwardSlot error = %v, want ErrTxRingFull", err)
	}
	if got := livedev.Drop(); got != 1 {
		t.Errorf("Livedev.Drop() = %d, want 1", got)
	}
}
