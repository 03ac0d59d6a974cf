// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import "github.com/google/gopacket"

// Verdict is the downstream disposition of a captured packet, as
// decided by whatever consumes it through a Decoder.
type Verdict int

const (
	// VerdictAccept lets a packet through: on a forwarding-capable
	// device, CopyModeIPS forwards it.
	VerdictAccept Verdict = iota
	// VerdictDrop silently discards a packet: on a forwarding
	// device in CopyModeIPS, it is never written to the TX ring.
	VerdictDrop
)

// Packet is the downstream contract for one captured frame. The
// capture loop populates it via Bind and installs a release hook via
// SetReleaseHook before handing it to a Decoder; the hook is the only
// path back into the ring/forwarding machinery, so a Decoder never
// needs to know about rings, devices or zero-copy at all.
//
// In-flight invariant: an integrator's PacketPool must provide at
// least as many concurrently outstanding Packets as the capture
// threads attached to it can have unreleased at once (bounded above
// by the sum of each attached ring's slot count); this module does
// not size or own the pool, so it is the integrator's responsibility
// to size it accordingly.
type Packet interface {
	// Bind attaches the frame's bytes — which may alias ring memory
	// directly when the thread operates in zero-copy mode — and its
	// capture metadata.
	Bind(data []byte, ci gopacket.CaptureInfo, zeroCopy bool)

	// SetReleaseHook installs the function that must be called
	// exactly once, after the downstream pipeline is done with this
	// packet, passing the verdict recorded by SetVerdict. The capture
	// core only installs it; the Packet/PacketPool implementation
	// calls it (nmcapture's fixedPool does so from Put).
	SetReleaseHook(fn func(v Verdict))

	// SetVerdict records the downstream disposition.
	SetVerdict(v Verdict)

	// SetIgnoreChecksum marks whether downstream checksum validation
	// should be skipped for this packet. The capture core sets this
	// unconditionally under ChecksumDisable and, under ChecksumAuto,
	// once the interface's invalid-checksum ratio has latched.
	SetIgnoreChecksum(ignore bool)

	// Pseudo reports whether this is a synthetic housekeeping packet
	// (e.g. a flush/timeout marker) that must never be forwarded.
	Pseudo() bool
}

// PacketPool is the external collaborator that owns packet object
// allocation and reuse; allocation strategy itself is out of scope
// for this module. Get returns ok=false when the pool is momentarily
// exhausted, which the capture loop treats as backpressure (see
// ErrPacketPoolExhausted).
type PacketPool interface {
	Get() (pkt Packet, ok bool)
	Put(pkt Packet)

	// Wait blocks until the pool believes a packet may be available,
	// or done is closed, whichever comes first, and reports which one
	// happened (false means done closed; the caller must stop). It is
	// a hint, not a guarantee: Get may still report ok=false
	// immediately afterward if another caller claimed the packet
	// first. The capture loop calls this once per iteration, before
	// polling, so it backs off instead of busy-polling while the
	// downstream pipeline is saturated.
	Wait(done <-chan struct{}) bool
}

// Decoder is the downstream decode step a capture loop hands
// finished packets to. Ethernet/IP/TCP decoding itself is out of
// scope for this module; Decoder is only the interface boundary.
type Decoder interface {
	Decode(pkt Packet) error
}
