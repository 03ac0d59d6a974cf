// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import "errors"

// Sentinel errors for the capture loop and forwarding path. Callers
// match them with errors.Is; most are additionally wrapped with
// fmt.Errorf("%w", ...) to carry interface/ring/thread context.
var (
	// ErrPacketPoolExhausted is returned by the capture loop's
	// drain step when PacketPool.Get reports it has no free packet
	// to hand out. The loop treats this as backpressure: it stops
	// advancing the ring and waits for the next poll cycle rather
	// than dropping the slot outright.
	ErrPacketPoolExhausted = errors.New("capture: packet pool exhausted")

	// ErrDownstreamFailure wraps a non-nil error returned by
	// Decoder.Decode. drain returns it immediately, aborting the rest
	// of the current batch; the loop logs it and moves on to the next
	// poll cycle rather than treating it as fatal to the thread.
	ErrDownstreamFailure = errors.New("capture: downstream decode failed")

	// ErrPollError wraps a failure of the poll syscall itself for a
	// reason other than EINTR. Loop logs it and polls again; it does
	// not end the loop.
	ErrPollError = errors.New("capture: poll failed")

	// ErrRingHupOrErr is returned when poll reports POLLHUP,
	// POLLRDHUP, POLLERR or POLLNVAL on a capture thread's ring fd,
	// meaning the ring (and usually the whole interface) has gone
	// away underneath the thread.
	ErrRingHupOrErr = errors.New("capture: ring reported hangup or error")

	// ErrTxRingFull is returned by the IPS forwarding path when the
	// destination TX ring has no free slots; the packet is dropped
	// and Livedev.Drop is incremented instead of blocking the
	// capture thread.
	ErrTxRingFull = errors.New("capture: tx ring full")
)
