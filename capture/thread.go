// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/go-netmap/nmcapture/netmap"
)

// pollTimeoutMillis is the poll() timeout each loop iteration uses
// while waiting for owned rings to report new slots.
const pollTimeoutMillis = 100

// checksumBadFlag marks a slot whose hardware-reported checksum was
// invalid. The real bit position for this is NIC/driver specific and
// out of scope for this module; this package only consumes the flag
// to drive the AUTO checksum policy's invalid-ratio check.
const checksumBadFlag uint16 = 0x0002

// checksumAutoSampleFloor is the minimum packet count a Livedev must
// accumulate before the AUTO policy acts on its invalid ratio, so a
// handful of early invalid packets doesn't immediately disable
// validation.
const checksumAutoSampleFloor = 1000

// checksumAutoThresholdPct is the invalid-checksum percentage above
// which the AUTO policy latches IgnoreChecksum.
const checksumAutoThresholdPct = 1

// CaptureThreadState is the per-thread runtime state bound to a
// contiguous ring range of one source Device and, when configured for
// forwarding, the same range's peers on a destination Device. Exactly
// one goroutine drives a given CaptureThreadState, and it must be
// pinned to its own OS thread (runtime.LockOSThread) before calling
// Loop: a ring range belongs to exactly one OS thread for the life of
// the capture, never shared with another.
type CaptureThreadState struct {
	cfg Config

	src       *netmap.Device
	dst       *netmap.Device // nil unless cfg.CopyMode != CopyModeNone
	ringFrom  int
	ringTo    int
	threadIdx int

	// zeroCopy selects whether bound Packets alias ring memory
	// directly or receive a private copy. It has no bearing on the
	// forwarding swap itself, which always operates on the ring's
	// buffer index regardless of how the data was exposed
	// downstream.
	zeroCopy bool

	pool    PacketPool
	decoder Decoder
	livedev *Livedev

	pktCounter   Counter
	dropCounter  Counter
	bytesCounter Counter

	pkts, drops, bytes uint64 // thread-local; flushed once per loop iteration

	log *logrus.Entry

	pollfds []unix.PollFd
}

// NewCaptureThreadState builds thread state bound to ring range
// [ringFrom, ringTo) of src — normally obtained from
// src.AssignThreadRange — and, when cfg.CopyMode is not
// CopyModeNone, the same range's peers on dst.
func NewCaptureThreadState(cfg Config, threadIdx int, src, dst *netmap.Device, ringFrom, ringTo int, pool PacketPool, decoder Decoder, livedev *Livedev, zeroCopy bool) *CaptureThreadState {
	return &CaptureThreadState{
		cfg:       cfg,
		src:       src,
		dst:       dst,
		ringFrom:  ringFrom,
		ringTo:    ringTo,
		threadIdx: threadIdx,
		zeroCopy:  zeroCopy,
		pool:      pool,
		decoder:   decoder,
		livedev:   livedev,
		log:       logrus.WithFields(logrus.Fields{"iface": cfg.Iface, "thread": threadIdx}),
	}
}

// Init prepares t to enter Loop. It: (1) validates the thread's ring
// range against the source device's actual ring count; (2) confirms
// a destination device is present whenever forwarding is configured;
// (3) registers this thread's kernel-packet, kernel-byte and
// kernel-drop counters against stats; (4) builds the poll descriptor
// set, one entry per owned ring; (5) primes thread-local counters to
// zero; (6) logs startup with the resolved ring range and copy mode;
// (7) checks, non-fatally, whether the interface has kernel
// receive-segmentation offloading enabled; (8) returns, leaving t
// ready for Loop.
func (t *CaptureThreadState) Init(stats StatsRegistry) error {
	if t.ringFrom < 0 || t.ringTo > t.src.NumRings() || t.ringFrom >= t.ringTo {
		return fmt.Errorf("capture: invalid ring range [%d,%d) for %q (%d rings)",
			t.ringFrom, t.ringTo, t.cfg.Iface, t.src.NumRings())
	}

	if t.cfg.CopyMode != CopyModeNone && t.dst == nil {
		return fmt.Errorf("capture: copy_mode %q configured without a destination device", t.cfg.CopyMode)
	}

	if stats != nil {
		t.pktCounter = stats.RegisterCounter("capture.kernel_packets")
		t.dropCounter = stats.RegisterCounter("capture.kernel_drops")
		t.bytesCounter = stats.RegisterCounter("capture.kernel_bytes")
	}

	t.pollfds = make([]unix.PollFd, t.ringTo-t.ringFrom)
	for i := t.ringFrom; i < t.ringTo; i++ {
		t.pollfds[i-t.ringFrom] = unix.PollFd{
			Fd:     int32(t.src.Rings[i].FD),
			Events: unix.POLLIN,
		}
	}

	t.pkts, t.drops, t.bytes = 0, 0, 0

	t.log.WithFields(logrus.Fields{
		"ring_from": t.ringFrom,
		"ring_to":   t.ringTo,
		"copy_mode": t.cfg.CopyMode,
	}).Info("capture thread initialized")

	if offloaded, err := netmap.GetIfaceOffloading(t.cfg.Iface); err != nil {
		t.log.WithError(err).Debug("could not query interface offload state")
	} else if offloaded {
		t.log.Warn("interface has kernel receive-segmentation offloading enabled; this can coalesce packets before they reach netmap")
	}

	return nil
}

// Loop polls the thread's owned rings until done is closed or an
// unrecoverable ring error is observed, draining and forwarding
// packets as they arrive. A non-EINTR poll error is logged and the
// loop polls again at once, with no backoff: as in the capture engine
// this is modeled on, a driver that keeps returning such an error will
// spin the OS thread tightly. That is a known, accepted risk here, not an
// oversight.
func (t *CaptureThreadState) Loop(done <-chan struct{}) error {
	for {
		select {
		case <-done:
			return nil
		default:
		}

		if !t.pool.Wait(done) {
			return nil
		}

		n, err := unix.Poll(t.pollfds, pollTimeoutMillis)
		if err != nil {
			if !netmap.IsEINTR(err) {
				t.log.WithError(fmt.Errorf("%s: %w: %v", t.cfg.Iface, ErrPollError, err)).Warn("poll failed")
			}
			continue
		}
		if n == 0 {
			continue
		}

		for i := range t.pollfds {
			revents := t.pollfds[i].Revents
			ringIdx := t.ringFrom + i

			if revents&(unix.POLLHUP|unix.POLLRDHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				return fmt.Errorf("%s: ring %d: %w", t.cfg.Iface, ringIdx, ErrRingHupOrErr)
			}
			if revents&unix.POLLIN == 0 {
				continue
			}

			if err := t.drain(ringIdx); err != nil {
				switch {
				case errors.Is(err, ErrPacketPoolExhausted):
					continue
				case errors.Is(err, ErrDownstreamFailure):
					t.log.WithError(err).Warn("drain aborted")
					continue
				default:
					return fmt.Errorf("%s: ring %d: %w", t.cfg.Iface, ringIdx, err)
				}
			}
		}

		t.flushCounters()
		t.syncPendingTx()
	}
}

// drain walks ring ringIdx's RX slots from its current cursor up to
// its kernel-reported tail, applying the configured BPF filter,
// binding each accepted slot into a pool packet, and dispatching it
// to the decoder. It commits the ring's head and cursor once, after
// the walk completes (or after a partial walk, at the point the pool
// ran dry), matching the capture engine's original per-batch commit.
//
// Forwarding correctness depends on the installed release hook
// running synchronously as part of Decoder.Decode (directly, or via
// PacketPool.Put) — a forwarding swap mutates this same slot's
// buf_idx, and that must happen before drain commits the ring and
// hands the slot back to the kernel.
func (t *CaptureThreadState) drain(ringIdx int) error {
	rh := t.src.Rings[ringIdx]
	rx := rh.RX

	cur := rx.Cur()
	tail := rx.Tail()

	for cur != tail {
		if t.cfg.Filter != nil && !t.cfg.Filter.Accept(rx.Buffer(cur)) {
			cur = rx.Next(cur)
			continue
		}

		pkt, ok := t.pool.Get()
		if !ok {
			rx.SetCur(cur)
			rx.SetHead(cur)
			t.drops++
			return ErrPacketPoolExhausted
		}

		next := rx.Next(cur)
		if err := t.bindAndDispatch(ringIdx, rx, cur, pkt); err != nil {
			rx.SetCur(next)
			rx.SetHead(next)
			return fmt.Errorf("%w: %v", ErrDownstreamFailure, err)
		}
		cur = next
	}

	rx.SetCur(cur)
	rx.SetHead(cur)
	return nil
}

// bindAndDispatch binds slot idx into pkt and hands it to the
// decoder, returning the decoder's error unwrapped so drain can abort
// the batch and propagate it. The slot is still committed by the
// caller either way: by the time Decode returns, the installed
// release hook has already run (synchronously, via the decoder or
// PacketPool.Put) and the slot's buffer is no longer this thread's to
// hold open.
func (t *CaptureThreadState) bindAndDispatch(ringIdx int, rx *netmap.Ring, idx uint32, pkt Packet) error {
	slotLen := rx.Len(idx)
	t.updateChecksumStats(rx, idx, pkt)

	var data []byte
	if t.zeroCopy {
		data = rx.Buffer(idx)
	} else {
		src := rx.Buffer(idx)
		data = make([]byte, len(src))
		copy(data, src)
	}

	ci := captureInfo(rx.Timestamp(), ringIdx, int(slotLen))
	pkt.Bind(data, ci, t.zeroCopy)
	pkt.SetReleaseHook(t.releaseHook(ringIdx, idx, pkt.Pseudo()))

	t.pkts++
	t.bytes += uint64(slotLen)
	if t.livedev != nil {
		t.livedev.AddPkts(1)
	}

	return t.decoder.Decode(pkt)
}

// releaseHook returns the function installed on a packet bound from
// ring ringIdx, slot idx. Forwarding is skipped entirely when copy
// mode is none, the packet is a pseudo-packet, or (in IPS mode) the
// downstream verdict was to drop it.
func (t *CaptureThreadState) releaseHook(ringIdx int, idx uint32, pseudo bool) func(Verdict) {
	return func(v Verdict) {
		if t.cfg.CopyMode == CopyModeNone || pseudo {
			return
		}
		if t.cfg.CopyMode == CopyModeIPS && v == VerdictDrop {
			return
		}

		rx := t.src.Rings[ringIdx].RX
		if err := forwardSlot(t.dst, ringIdx, rx, idx, t.livedev); err != nil {
			t.drops++
			t.log.WithError(err).Debug("forwarding dropped a packet")
		}
	}
}

// updateChecksumStats folds a slot's hardware checksum verdict into
// the device's Livedev accumulators, marks pkt to skip downstream
// checksum validation under ChecksumDisable (unconditionally) or
// ChecksumAuto (once latched), and under ChecksumAuto trips
// IgnoreChecksum once the invalid ratio crosses its threshold.
func (t *CaptureThreadState) updateChecksumStats(rx *netmap.Ring, idx uint32, pkt Packet) {
	if t.cfg.ChecksumMode == ChecksumDisable {
		pkt.SetIgnoreChecksum(true)
		return
	}
	if t.livedev == nil {
		return
	}

	if rx.SlotFlags(idx)&checksumBadFlag != 0 {
		t.livedev.AddInvalidChecksums(1)
	}

	if t.cfg.ChecksumMode != ChecksumAuto {
		return
	}

	if t.livedev.IgnoreChecksum() {
		pkt.SetIgnoreChecksum(true)
		return
	}

	pkts := t.livedev.Pkts()
	if pkts < checksumAutoSampleFloor {
		return
	}
	if t.livedev.InvalidChecksums()*100 > pkts*checksumAutoThresholdPct {
		t.livedev.SetIgnoreChecksum(true)
		pkt.SetIgnoreChecksum(true)
		t.log.Warn("checksum validation disabled: invalid ratio exceeded threshold")
	}
}

// flushCounters publishes this iteration's thread-local pkts/bytes/drops
// deltas to the stats registry counters registered during Init, then
// resets them.
func (t *CaptureThreadState) flushCounters() {
	if t.pktCounter != nil && t.pkts > 0 {
		t.pktCounter.Add(t.pkts)
	}
	if t.bytesCounter != nil && t.bytes > 0 {
		t.bytesCounter.Add(t.bytes)
	}
	if t.dropCounter != nil && t.drops > 0 {
		t.dropCounter.Add(t.drops)
	}
	t.pkts, t.drops, t.bytes = 0, 0, 0
}

// syncPendingTx opportunistically kicks the kernel to drain any TX
// rings this thread may have forwarded into during the iteration,
// without blocking if another thread currently holds that ring's
// lock. This mirrors the capture engine's original non-blocking
// spinlock-guarded NIOCTXSYNC call; it is a best-effort nudge, not a
// correctness requirement, since the kernel syncs TX rings on its own
// schedule regardless.
func (t *CaptureThreadState) syncPendingTx() {
	if t.dst == nil {
		return
	}
	for i := t.ringFrom; i < t.ringTo; i++ {
		rh := t.dst.Rings[i%t.dst.NumRings()]
		if !rh.TxLock.TryLock() {
			continue
		}
		if err := netmap.SyncTx(rh.FD); err != nil {
			t.log.WithError(err).Debug("tx sync failed")
		}
		rh.TxLock.Unlock()
	}
}
