// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import (
	"encoding/binary"
	"time"
)

// Ring header layout, mirroring the public shape of struct
// netmap_ring from net/netmap_user.h: a fixed header followed by a
// flexible array of slots. Rather than overlaying a C struct with
// unsafe.Pointer (or going through cgo, as the teacher does for the
// vendor SNF library), this package reads and writes the header and
// slot fields directly against the mmap'd region returned by
// unix.Mmap. That keeps the hot path allocation-free and makes the
// ring trivially testable: a unit test can hand Ring a plain []byte
// it built by hand, no real netmap-capable NIC required.
const (
	ringHdrBufOfs   = 0  // int64: byte offset from this ring to its buffer area
	ringHdrNumSlots = 8  // uint32
	ringHdrBufSize  = 12 // uint32: size of a single packet buffer
	ringHdrHead     = 16 // uint32
	ringHdrCur      = 20 // uint32
	ringHdrTail     = 24 // uint32
	ringHdrFlags    = 28 // uint32
	ringHdrTsSec    = 32 // uint32: receive timestamp, seconds
	ringHdrTsUsec   = 36 // uint32: receive timestamp, microseconds
	ringHdrSize     = 184
	slotSize        = 8 // buf_idx uint32, len uint16, flags uint16
)

// Slot flags, mirroring netmap_user.h's NS_* constants.
const (
	// SlotBufChanged marks a slot whose buf_idx was rebound by
	// something other than the kernel (e.g. the IPS forwarding
	// swap in the capture package's forward.go) and must be
	// re-synced by the kernel before reuse.
	SlotBufChanged uint16 = 0x0001
)

// Ring is a zero-copy view over one RX or TX ring living inside a
// Device's mapped memory region. It holds no cached state; every
// accessor reads straight from Mem, so any number of goroutines may
// call the read-only accessors concurrently. Mutating accessors
// (SetCur, SetBufIdx, ...) are not internally synchronized — callers
// must hold the ownership or lock the spec assigns to that mutation
// (RX: the owning capture thread; TX: the ring's tx_lock).
type Ring struct {
	Mem    []byte // mapped region shared by every ring of the owning Device
	Offset int    // byte offset of this ring's header within Mem
}

func (r *Ring) hdr() []byte { return r.Mem[r.Offset:] }

func (r *Ring) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(r.hdr()[off:])
}

func (r *Ring) setU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(r.hdr()[off:], v)
}

// NumSlots returns the fixed slot count of this ring.
func (r *Ring) NumSlots() uint32 { return r.u32(ringHdrNumSlots) }

// Head returns the ring's release cursor: slots up to Head have been
// returned to the kernel (RX) or queued for transmission (TX).
func (r *Ring) Head() uint32 { return r.u32(ringHdrHead) }

// SetHead advances the release cursor.
func (r *Ring) SetHead(v uint32) { r.setU32(ringHdrHead, v) }

// Cur returns the ring's read/write cursor.
func (r *Ring) Cur() uint32 { return r.u32(ringHdrCur) }

// SetCur sets the read/write cursor.
func (r *Ring) SetCur(v uint32) { r.setU32(ringHdrCur, v) }

// Tail returns what the kernel has produced (RX) or consumed (TX).
func (r *Ring) Tail() uint32 { return r.u32(ringHdrTail) }

// SetTail sets the ring's tail. On a real mapped ring this word is
// written by the kernel only; this setter exists so tests (in this
// package and in packages built on top of it) can simulate the
// kernel publishing newly received slots, or draining queued TX
// slots, against a synthetic ring.
func (r *Ring) SetTail(v uint32) { r.setU32(ringHdrTail, v) }

// Timestamp returns the ring's most recently recorded receive
// timestamp (meaningful on RX rings only).
func (r *Ring) Timestamp() time.Time {
	sec := int64(r.u32(ringHdrTsSec))
	usec := int64(r.u32(ringHdrTsUsec))
	return time.Unix(sec, usec*1000)
}

// Next returns the slot index following i, wrapping at NumSlots.
func (r *Ring) Next(i uint32) uint32 {
	if i++; i >= r.NumSlots() {
		return 0
	}
	return i
}

// Space reports the number of slots available for consumption (on an
// RX ring, between Cur and Tail) or free for production (on a TX
// ring, same formula: the kernel advances Tail as it drains queued
// slots).
func (r *Ring) Space() uint32 {
	n := r.NumSlots()
	tail, cur := r.Tail(), r.Cur()
	if tail >= cur {
		return tail - cur
	}
	return n - cur + tail
}

func (r *Ring) slotOffset(i uint32) int {
	return ringHdrSize + int(i)*slotSize
}

// BufIdx returns the physical buffer index currently bound to slot i.
func (r *Ring) BufIdx(i uint32) uint32 {
	return binary.LittleEndian.Uint32(r.hdr()[r.slotOffset(i):])
}

// SetBufIdx rebinds slot i to a different physical buffer index; used
// by the IPS forwarding swap (see the capture package's forward.go).
func (r *Ring) SetBufIdx(i uint32, idx uint32) {
	binary.LittleEndian.PutUint32(r.hdr()[r.slotOffset(i):], idx)
}

// Len returns the valid byte length of slot i's buffer.
func (r *Ring) Len(i uint32) uint16 {
	return binary.LittleEndian.Uint16(r.hdr()[r.slotOffset(i)+4:])
}

// SetLen sets the valid byte length of slot i's buffer.
func (r *Ring) SetLen(i uint32, n uint16) {
	binary.LittleEndian.PutUint16(r.hdr()[r.slotOffset(i)+4:], n)
}

// SlotFlags returns slot i's flag word (e.g. SlotBufChanged).
func (r *Ring) SlotFlags(i uint32) uint16 {
	return binary.LittleEndian.Uint16(r.hdr()[r.slotOffset(i)+6:])
}

// SetSlotFlags replaces slot i's flag word outright.
func (r *Ring) SetSlotFlags(i uint32, f uint16) {
	binary.LittleEndian.PutUint16(r.hdr()[r.slotOffset(i)+6:], f)
}

// OrSlotFlags ORs f into slot i's existing flag word; NS_BUF_CHANGED
// is additive and must not clobber flags the kernel has already set.
func (r *Ring) OrSlotFlags(i uint32, f uint16) {
	r.SetSlotFlags(i, r.SlotFlags(i)|f)
}

// bufOffset returns the byte offset, from the start of Mem, of the
// packet buffer currently bound to slot i.
func (r *Ring) bufOffset(i uint32) int64 {
	bufOfs := int64(binary.LittleEndian.Uint64(r.hdr()[ringHdrBufOfs:]))
	bufSize := int64(r.u32(ringHdrBufSize))
	return int64(r.Offset) + bufOfs + int64(r.BufIdx(i))*bufSize
}

// Buffer returns a zero-copy view of slot i's packet buffer,
// truncated to its recorded length. The returned slice aliases Mem
// directly: it is only valid until the slot's buf_idx changes again
// (kernel reuse after Head advances, or a forwarding swap).
func (r *Ring) Buffer(i uint32) []byte {
	off := r.bufOffset(i)
	n := int(r.Len(i))
	return r.Mem[off : off+int64(n)]
}

// NewSyntheticRing builds a freestanding ring image with numSlots
// slots of bufSize bytes each, slot i initially bound to buffer index
// i, and every other header field zeroed. No real netmap device is
// involved; this exists so this package's own tests — and tests in
// packages built on top of it, like capture — can exercise
// ring-consuming code against a hand-built []byte instead of a real
// netmap-capable NIC.
func NewSyntheticRing(numSlots, bufSize uint32) (*Ring, []byte) {
	slotsOff := ringHdrSize
	bufsOff := slotsOff + int(numSlots)*slotSize
	mem := make([]byte, bufsOff+int(numSlots)*int(bufSize))

	binary.LittleEndian.PutUint64(mem[ringHdrBufOfs:], uint64(bufsOff))
	binary.LittleEndian.PutUint32(mem[ringHdrNumSlots:], numSlots)
	binary.LittleEndian.PutUint32(mem[ringHdrBufSize:], bufSize)

	r := &Ring{Mem: mem, Offset: 0}
	for i := uint32(0); i < numSlots; i++ {
		r.SetBufIdx(i, i)
	}
	return r, mem
}
