// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// RingHandle is one hardware ring's registered file descriptor plus
// the RX and TX Ring views carved out of the Device's shared memory
// region for it. TxLock serializes the IPS forwarding swap (spec
// §4.4/§5): two source rings may both pick this ring as their
// forwarding destination (dst_ring_id = src_ring_id mod
// dst_rings_count), so only one capture thread may touch its TX
// slots at a time.
type RingHandle struct {
	FD     int
	RX     *Ring
	TX     *Ring
	TxLock sync.Mutex
}

// Device is one open netmap-capable interface: its shared memory
// region and the per-ring handles carved out of it. Devices are
// opened and released exclusively through a Registry, which
// reference-counts them by name so two capture threads attached to
// the same interface do not each map the region independently.
type Device struct {
	Name string

	mem     []byte
	memSize int

	Rings []*RingHandle // index == hardware ring id

	refcount     int   // guarded by the owning Registry's mutex
	threadsBound int32 // atomic; see AssignThreadRange
}

// NumRings returns the hardware ring count. openDevice refuses to
// register an interface whose RX and TX ring counts differ, so this
// single number describes both directions.
func (d *Device) NumRings() int { return len(d.Rings) }

// AssignThreadRange claims the next sequential thread slot against
// this device and returns the contiguous, non-overlapping half-open
// ring range [ringFrom, ringTo) owned by that slot. Every capture
// thread configured against this device must claim its range exactly
// once, before its CaptureThreadState is built, passing the same
// threadCount (the total number of threads configured for this
// device). When NumRings does not divide evenly across threadCount,
// every thread gets the even base share and the last thread absorbs
// the remainder, so its ringTo is always NumRings() (its last owned
// ring is NumRings()-1) — matching spec's worked example (4 rings,
// 3 threads: [0,0], [1,1], [2,3] inclusive, returned here as [0,1),
// [1,2), [2,4)).
func (d *Device) AssignThreadRange(threadCount int) (ringFrom, ringTo int, err error) {
	if threadCount <= 0 || threadCount > d.NumRings() {
		return 0, 0, ErrTooManyThreads
	}

	threadID := int(atomic.AddInt32(&d.threadsBound, 1)) - 1
	if threadID >= threadCount {
		return 0, 0, ErrTooManyThreads
	}

	base := d.NumRings() / threadCount

	ringFrom = threadID * base
	if threadID == threadCount-1 {
		ringTo = d.NumRings()
	} else {
		ringTo = ringFrom + base
	}
	return ringFrom, ringTo, nil
}

// openDevice performs the full open sequence for one interface:
// verify it is administratively up, best-effort enable promiscuous
// mode, query its ring geometry, then register and map every
// hardware ring, rolling back everything opened so far on the first
// failure. It mirrors Suricata's NetmapOpen, generalized from one
// monolithic ioctl dance to this package's per-ring fd model.
func openDevice(name string, promisc bool, warn func(error)) (*Device, error) {
	flags, err := GetFlags(name)
	if err != nil {
		return nil, err
	}
	if !flags.IsUp() {
		return nil, fmt.Errorf("%s: %w", name, ErrInterfaceDown)
	}

	if promisc && !flags.IsPromisc() {
		if err := SetFlags(name, flags|FlagPromisc); err != nil && warn != nil {
			warn(fmt.Errorf("enable promiscuous mode on %s: %w", name, err))
		}
	}

	gfd, err := openControl()
	if err != nil {
		return nil, newIfaceControlError("open", name, errnoOf(err))
	}
	defer unix.Close(gfd)

	geo, err := queryGeometry(gfd, name)
	if err != nil {
		return nil, newIfaceControlError("query", name, errnoOf(err))
	}
	if geo.rxRings != geo.txRings {
		return nil, fmt.Errorf("%s: %w", name, ErrAsymmetricRings)
	}

	d := &Device{Name: name}
	numRings := int(geo.rxRings)

	for i := 0; i < numRings; i++ {
		rfd, err := openControl()
		if err != nil {
			d.teardown()
			return nil, wrapRing(i, newIfaceControlError("open", name, errnoOf(err)))
		}

		nr, err := registerRing(rfd, name, uint16(i))
		if err != nil {
			unix.Close(rfd)
			d.teardown()
			return nil, wrapRing(i, newIfaceControlError("register", name, errnoOf(err)))
		}

		if d.mem == nil {
			mem, err := mmapRegion(rfd, int(nr.memsize))
			if err != nil {
				unix.Close(rfd)
				d.teardown()
				return nil, wrapRing(i, newIfaceControlError("mmap", name, errnoOf(err)))
			}
			d.mem = mem
			d.memSize = int(nr.memsize)
		}

		rxOff := int(nr.offset)
		txOff := rxOff + ringHdrSize + int(nr.rxSlots)*slotSize

		d.Rings = append(d.Rings, &RingHandle{
			FD: rfd,
			RX: &Ring{Mem: d.mem, Offset: rxOff},
			TX: &Ring{Mem: d.mem, Offset: txOff},
		})
	}

	return d, nil
}

// teardown closes every ring fd opened so far and unmaps the shared
// region, if mapped. Used both for partial-failure rollback during
// openDevice and for a clean close once a device's refcount reaches
// zero.
func (d *Device) teardown() error {
	var first error
	for _, rh := range d.Rings {
		if rh.FD < 0 {
			continue
		}
		if err := unix.Close(rh.FD); err != nil && first == nil {
			first = err
		}
	}
	if d.mem != nil {
		if err := munmapRegion(d.mem); err != nil && first == nil {
			first = err
		}
		d.mem = nil
	}
	return first
}
