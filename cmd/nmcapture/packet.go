package main

import (
	"github.com/google/gopacket"

	"github.com/go-netmap/nmcapture/capture"
)

// packet is the default capture.Packet implementation nmcapture binds
// against its PacketPool. Its data slice may alias ring memory
// directly (zero-copy mode) or hold a private copy; either way it is
// only valid between Bind and the moment the installed release hook
// fires.
type packet struct {
	data           []byte
	ci             gopacket.CaptureInfo
	verdict        capture.Verdict
	ignoreChecksum bool
	release        func(capture.Verdict)
}

func (p *packet) Bind(data []byte, ci gopacket.CaptureInfo, zeroCopy bool) {
	p.data, p.ci = data, ci
}

func (p *packet) SetReleaseHook(fn func(capture.Verdict)) { p.release = fn }
func (p *packet) SetVerdict(v capture.Verdict)            { p.verdict = v }
func (p *packet) SetIgnoreChecksum(ignore bool)           { p.ignoreChecksum = ignore }
func (p *packet) Pseudo() bool                            { return false }

// fixedPool is a bounded capture.PacketPool: exactly capacity packets
// exist for the lifetime of the pool, handed out and recycled through
// a buffered channel. Unlike a sync.Pool, it actually runs out when
// the downstream pipeline falls behind, which is what lets
// capture.ErrPacketPoolExhausted mean something — Get reports ok=false
// rather than growing the pool further.
type fixedPool struct {
	free chan *packet
}

// newFixedPool preallocates capacity packets. Per capture.Packet's
// in-flight invariant, capacity should be at least the sum of the
// slot counts of every ring range this pool is shared across.
func newFixedPool(capacity int) *fixedPool {
	free := make(chan *packet, capacity)
	for i := 0; i < capacity; i++ {
		free <- &packet{}
	}
	return &fixedPool{free: free}
}

func (p *fixedPool) Get() (capture.Packet, bool) {
	select {
	case pkt := <-p.free:
		return pkt, true
	default:
		return nil, false
	}
}

func (p *fixedPool) Put(pkt capture.Packet) {
	pk := pkt.(*packet)
	if pk.release != nil {
		pk.release(pk.verdict)
		pk.release = nil
	}
	pk.data = nil
	p.free <- pk
}

// Wait blocks until the channel holds at least one free packet, or
// done is closed, peeking without actually claiming it so a
// subsequent Get still behaves like any other caller's.
func (p *fixedPool) Wait(done <-chan struct{}) bool {
	select {
	case pkt := <-p.free:
		p.free <- pkt
		return true
	case <-done:
		return false
	}
}
