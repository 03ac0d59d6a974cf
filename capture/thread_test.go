// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import (
	"errors"
	"testing"

	"github.com/google/gopacket"

	"github.com/go-netmap/nmcapture/netmap"
)

type fakePacket struct {
	data           []byte
	ci             gopacket.CaptureInfo
	zeroCopy       bool
	verdict        Verdict
	pseudo         bool
	ignoreChecksum bool
	release        func(Verdict)
}

func (p *fakePacket) Bind(data []byte, ci gopacket.CaptureInfo, zeroCopy bool) {
	p.data, p.ci, p.zeroCopy = data, ci, zeroCopy
}
func (p *fakePacket) SetReleaseHook(fn func(Verdict)) { p.release = fn }
func (p *fakePacket) SetVerdict(v Verdict)            { p.verdict = v }
func (p *fakePacket) SetIgnoreChecksum(ignore bool)   { p.ignoreChecksum = ignore }
func (p *fakePacket) Pseudo() bool                    { return p.pseudo }

// fakePool is a tiny free-list PacketPool. Put invokes the packet's
// release hook before recycling it, modeling a Decoder/pool pairing
// where release happens synchronously as part of returning a packet.
type fakePool struct {
	free []*fakePacket
}

func newFakePool(n int) *fakePool {
	free := make([]*fakePacket, n)
	for i := range free {
		free[i] = &fakePacket{}
	}
	return &fakePool{free: free}
}

func (p *fakePool) Get() (Packet, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	pkt := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return pkt, true
}

func (p *fakePool) Put(pkt Packet) {
	fp := pkt.(*fakePacket)
	if fp.release != nil {
		fp.release(fp.verdict)
		fp.release = nil
	}
	p.free = append(p.free, fp)
}

// Wait reports whether a packet is free without blocking, which is
// all these synchronous, single-goroutine tests ever need: done is
// never closed mid-drain here.
func (p *fakePool) Wait(done <-chan struct{}) bool {
	if len(p.free) > 0 {
		return true
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// fakeDecoder synchronously assigns a verdict and returns the packet
// to its pool, the way a real decode-then-recycle pipeline would.
// With hold set it keeps every packet instead, modeling a downstream
// stage that has not released anything yet.
type fakeDecoder struct {
	pool      *fakePool
	verdict   Verdict
	decodeErr error
	hold      bool
	decoded   int
}

func (d *fakeDecoder) Decode(pkt Packet) error {
	d.decoded++
	pkt.SetVerdict(d.verdict)
	if !d.hold {
		d.pool.Put(pkt)
	}
	return d.decodeErr
}

func newTestDevice(name string, numRings int, numSlots, bufSize uint32) *netmap.Device {
	d := &netmap.Device{Name: name}
	for i := 0; i < numRings; i++ {
		rx, _ := netmap.NewSyntheticRing(numSlots, bufSize)
		tx, _ := netmap.NewSyntheticRing(numSlots, bufSize)
		d.Rings = append(d.Rings, &netmap.RingHandle{FD: -1, RX: rx, TX: tx})
	}
	return d
}

// fillRing writes payload into the first n slots of rh.RX's buffers
// and resets its cursor, as setup for a drain starting from slot 0.
// Tail is not touched here; call setRingTail separately to mark the
// slots as kernel-produced.
func fillRing(rh *netmap.RingHandle, n int, payload []byte) {
	for i := 0; i < n; i++ {
		idx := uint32(i)
		rh.RX.SetLen(idx, uint16(len(payload)))
		copy(rh.RX.Buffer(idx), payload)
	}
	rh.RX.SetCur(0)
	rh.RX.SetHead(0)
}

func setRingTail(r *netmap.Ring, v uint32) { r.SetTail(v) }

func TestDrainBasic(t *testing.T) {
	dev := newTestDevice("eth0", 1, 8, 64)
	payload := make([]byte, 60)
	fillRing(dev.Rings[0], 3, payload)
	setRingTail(dev.Rings[0].RX, 3)

	pool := newFakePool(3)
	dec := &fakeDecoder{pool: pool, verdict: VerdictAccept}

	cfg := Config{Iface: "eth0", Threads: 1, CopyMode: CopyModeNone}
	th := NewCaptureThreadState(cfg, 0, dev, nil, 0, 1, pool, dec, nil, true)
	if err := th.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := th.drain(0); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if dec.decoded != 3 {
		t.Errorf("decoded = %d, want 3", dec.decoded)
	}
	if got := dev.Rings[0].RX.Cur(); got != 3 {
		t.Errorf("RX.Cur() = %d, want 3", got)
	}
	if got := dev.Rings[0].RX.Head(); got != 3 {
		t.Errorf("RX.Head() = %d, want 3", got)
	}
}

func TestDrainPoolExhausted(t *testing.T) {
	dev := newTestDevice("eth0", 1, 8, 64)
	payload := make([]byte, 60)
	fillRing(dev.Rings[0], 4, payload)
	setRingTail(dev.Rings[0].RX, 4)

	pool := newFakePool(2) // fewer free packets than slots available
	dec := &fakeDecoder{pool: pool, verdict: VerdictAccept, hold: true}

	cfg := Config{Iface: "eth0", Threads: 1, CopyMode: CopyModeNone}
	th := NewCaptureThreadState(cfg, 0, dev, nil, 0, 1, pool, dec, nil, true)
	if err := th.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := th.drain(0)
	if !errors.Is(err, ErrPacketPoolExhausted) {
		t.Fatalf("drain error = %v, want ErrPacketPoolExhausted", err)
	}
	if dec.decoded != 2 {
		t.Errorf("decoded = %d, want 2", dec.decoded)
	}
	if got := dev.Rings[0].RX.Cur(); got != 2 {
		t.Errorf("RX.Cur() = %d, want 2 (partial commit)", got)
	}
}

func TestDrainDecodeFailureAborts(t *testing.T) {
	dev := newTestDevice("eth0", 1, 8, 64)
	payload := make([]byte, 60)
	fillRing(dev.Rings[0], 3, payload)
	setRingTail(dev.Rings[0].RX, 3)

	pool := newFakePool(3)
	dec := &fakeDecoder{pool: pool, verdict: VerdictAccept, decodeErr: errors.New("bad packet")}

	cfg := Config{Iface: "eth0", Threads: 1, CopyMode: CopyModeNone}
	th := NewCaptureThreadState(cfg, 0, dev, nil, 0, 1, pool, dec, nil, true)
	if err := th.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := th.drain(0)
	if !errors.Is(err, ErrDownstreamFailure) {
		t.Fatalf("drain error = %v, want ErrDownstreamFailure", err)
	}
	if dec.decoded != 1 {
		t.Errorf("decoded = %d, want 1 (drain must abort after the first failure)", dec.decoded)
	}
	if got := dev.Rings[0].RX.Cur(); got != 1 {
		t.Errorf("RX.Cur() = %d, want 1 (only the failed slot committed)", got)
	}
}

func TestDrainBPFReject(t *testing.T) {
	dev := newTestDevice("eth0", 1, 8, 64)
	payload := make([]byte, 60)
	fillRing(dev.Rings[0], 3, payload)
	setRingTail(dev.Rings[0].RX, 3)

	pool := newFakePool(3)
	dec := &fakeDecoder{pool: pool, verdict: VerdictAccept}

	cfg := Config{
		Iface: "eth0", Threads: 1, CopyMode: CopyModeNone,
		Filter: rejectAllProgram(t),
	}
	th := NewCaptureThreadState(cfg, 0, dev, nil, 0, 1, pool, dec, nil, true)
	if err := th.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := th.drain(0); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if dec.decoded != 0 {
		t.Errorf("decoded = %d, want 0 (all rejected)", dec.decoded)
	}
	if got := dev.Rings[0].RX.Cur(); got != 3 {
		t.Errorf("RX.Cur() = %d, want 3 (rejected slots still advance)", got)
	}
}

func TestDrainForwardIPS(t *testing.T) {
	src := newTestDevice("eth0", 1, 8, 64)
	dst := newTestDevice("eth1", 1, 8, 64)
	setRingTail(dst.Rings[0].TX, 8) // TX ring has free space

	payload := make([]byte, 60)
	fillRing(src.Rings[0], 2, payload)
	setRingTail(src.Rings[0].RX, 2)

	pool := newFakePool(2)
	livedev := NewLivedev("eth1")
	cfg := Config{Iface: "eth0", OutIface: "eth1", Threads: 1, CopyMode: CopyModeIPS}

	decAccept := &fakeDecoder{pool: pool, verdict: VerdictAccept}
	th := NewCaptureThreadState(cfg, 0, src, dst, 0, 1, pool, decAccept, livedev, true)
	if err := th.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	rxBufBefore := src.Rings[0].RX.BufIdx(0)
	txBufBefore := dst.Rings[0].TX.BufIdx(0)

	if err := th.drain(0); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if got := dst.Rings[0].TX.Cur(); got != 2 {
		t.Fatalf("TX.Cur() = %d, want 2 (both slots forwarded)", got)
	}
	if src.Rings[0].RX.BufIdx(0) != txBufBefore {
		t.Errorf("rx slot 0 did not receive the tx ring's old buffer")
	}
	if dst.Rings[0].TX.BufIdx(0) != rxBufBefore {
		t.Errorf("tx slot 0 did not receive the rx ring's old buffer")
	}
}

func TestDrainForwardIPSDropSuppressesForward(t *testing.T) {
	src := newTestDevice("eth0", 1, 8, 64)
	dst := newTestDevice("eth1", 1, 8, 64)
	setRingTail(dst.Rings[0].TX, 8)

	payload := make([]byte, 60)
	fillRing(src.Rings[0], 1, payload)
	setRingTail(src.Rings[0].RX, 1)

	pool := newFakePool(1)
	dec := &fakeDecoder{pool: pool, verdict: VerdictDrop}

	cfg := Config{Iface: "eth0", OutIface: "eth1", Threads: 1, CopyMode: CopyModeIPS}
	th := NewCaptureThreadState(cfg, 0, src, dst, 0, 1, pool, dec, nil, true)
	if err := th.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := th.drain(0); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := dst.Rings[0].TX.Cur(); got != 0 {
		t.Errorf("TX.Cur() = %d, want 0 (dropped packet must not forward)", got)
	}
}

func rejectAllProgram(t *testing.T) *rejectAllFilter {
	t.Helper()
	return &rejectAllFilter{}
}

type rejectAllFilter struct{}

func (rejectAllFilter) Accept(p []byte) bool { return false }
