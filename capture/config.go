// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import (
	"fmt"

	"github.com/go-netmap/nmcapture/bpf"
)

// CopyMode selects what a capture thread does with a packet once a
// verdict has been reached, on an interface configured with a
// forwarding peer.
type CopyMode int

const (
	// CopyModeNone delivers packets read-only; nothing is ever
	// written back to any TX ring.
	CopyModeNone CopyMode = iota
	// CopyModeTap forwards every packet to the paired interface
	// regardless of verdict, for a transparent tap.
	CopyModeTap
	// CopyModeIPS forwards every packet whose verdict is not
	// VerdictDrop to the paired interface, for inline prevention.
	CopyModeIPS
)

func (m CopyMode) String() string {
	switch m {
	case CopyModeNone:
		return "none"
	case CopyModeTap:
		return "tap"
	case CopyModeIPS:
		return "ips"
	default:
		return "unknown"
	}
}

// ChecksumMode selects how a capture thread treats hardware checksum
// offload results reported alongside a slot.
type ChecksumMode int

const (
	ChecksumDisable ChecksumMode = iota // never validate
	ChecksumAuto                        // validate; degrade to Disable once Livedev's invalid ratio trips
	ChecksumEnable                      // always validate
)

func (m ChecksumMode) String() string {
	switch m {
	case ChecksumDisable:
		return "disable"
	case ChecksumAuto:
		return "auto"
	case ChecksumEnable:
		return "enable"
	default:
		return "unknown"
	}
}

// Config describes one interface (or forwarding interface pair) to
// capture from: how many threads partition its rings, whether
// promiscuous mode should be requested, what a thread does with a
// packet once it has a verdict, and an optional pre-compiled BPF
// filter.
type Config struct {
	Iface    string
	OutIface string // required unless CopyMode == CopyModeNone
	Threads  int
	Promisc  bool

	CopyMode     CopyMode
	ChecksumMode ChecksumMode

	Filter bpf.Filter // nil accepts every packet
}

// Validate reports whether c is well-formed enough to build a
// CaptureThreadState from.
func (c *Config) Validate() error {
	if c.Iface == "" {
		return fmt.Errorf("capture: iface must not be empty")
	}
	if c.Threads <= 0 {
		return fmt.Errorf("capture: threads must be positive, got %d", c.Threads)
	}
	if c.CopyMode != CopyModeNone && c.OutIface == "" {
		return fmt.Errorf("capture: out_iface is required when copy_mode is %q", c.CopyMode)
	}
	if c.OutIface == c.Iface && c.OutIface != "" {
		return fmt.Errorf("capture: iface and out_iface must differ")
	}
	return nil
}
