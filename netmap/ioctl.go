// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const nmIfnamsiz = 16

// Custom ioctl request numbers, assigned the same way the real
// netmap API assigns NIOCGINFO/NIOCREGIF/NIOCTXSYNC/NIOCRXSYNC: as
// _IOWR/_IO requests against the /dev/netmap control device.
const (
	niocGInfo  = 0xc0306907
	niocRegIf  = 0xc0306908
	niocTxSync = 0x6909
	niocRxSync = 0x690a
)

// nmAPIVersion is the request/response protocol version this package
// speaks; the kernel rejects a request carrying a version it does
// not understand.
const nmAPIVersion = 14

// Ring-selection request codes for nmreq.ringID, mirroring netmap's
// NETMAP_HW_RING / NR_REG_ALL_NIC convention: a concrete ring index
// selects exactly that ring, allNICRings selects every hardware ring
// at once. Neither request in this package sends allNICRings:
// queryGeometry leaves ringID at zero, and registerRing always binds
// one ring per RingHandle.
const allNICRings = 0xffff

// nrRegOneNIC mirrors netmap's NR_REG_ONE_NIC nr_flags value: the
// registration binds exactly one hardware ring (by index, in ringID)
// rather than the whole NIC or the host stack ring.
const nrRegOneNIC = 4

// netmapNoTxPoll mirrors netmap's NETMAP_NO_TX_POLL ringID bit. Set on
// an RX ring's registration, it tells the kernel not to wake pollers
// on that ring's paired TX ring — this module's capture threads only
// ever poll for RX readiness and forward through an explicit TXSYNC
// (see syncPendingTx), so a TX wakeup on every RX poll would be pure
// overhead.
const netmapNoTxPoll = 0x1000

// nmreq mirrors the fixed-size portion of netmap's struct nmreq: a
// request/response block exchanged with the kernel via ioctl to
// query ring geometry (NIOCGINFO) and to register a ring (NIOCREGIF).
// Fields unused by this package (spare future-extension words) are
// omitted; the kernel only reads what its version of the struct
// defines, and every field this package does rely on sits within the
// stable prefix.
type nmreq struct {
	name    [nmIfnamsiz]byte
	version uint32
	offset  uint32
	memsize uint32
	txRings uint16
	rxRings uint16
	txSlots uint32
	rxSlots uint32
	ringID  uint16
	cmd     uint16
	arg1    uint16
	arg2    uint16
	arg3    uint32
	flags   uint32
}

func ioctlNmreq(fd int, req uintptr, nr *nmreq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(nr)))
	if errno != 0 {
		return errno
	}
	return nil
}

// openControl opens the netmap control device, /dev/netmap, through
// which every geometry query, ring registration, and memory mapping
// is made.
func openControl() (int, error) {
	return unix.Open("/dev/netmap", unix.O_RDWR, 0)
}

// queryGeometry issues NIOCGINFO for the named interface: the kernel
// fills in ring/slot counts and the size of the shared memory region
// a subsequent registration would require, without binding anything.
func queryGeometry(fd int, ifname string) (nmreq, error) {
	var nr nmreq
	copy(nr.name[:], ifname)
	nr.version = nmAPIVersion
	err := ioctlNmreq(fd, niocGInfo, &nr)
	return nr, err
}

// registerRing issues NIOCREGIF to bind fd to exactly one hardware
// ring (both its RX and TX half share one slot range index in
// netmap's model) of the named interface.
func registerRing(fd int, ifname string, ringID uint16) (nmreq, error) {
	var nr nmreq
	copy(nr.name[:], ifname)
	nr.version = nmAPIVersion
	nr.flags = nrRegOneNIC
	nr.ringID = ringID | netmapNoTxPoll
	err := ioctlNmreq(fd, niocRegIf, &nr)
	return nr, err
}

// SyncTx asks the kernel to drain and transmit queued slots on fd's
// registered TX ring without blocking, equivalent to
// ioctl(fd, NIOCTXSYNC). RingHandle.FD is the appropriate fd to pass:
// the capture package uses this for its opportunistic post-forward
// kick, taking the ring's TxLock first.
func SyncTx(fd int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), niocTxSync, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// mmapRegion maps the shared memory region exposed by fd (a control
// handle that has completed at least one successful registration).
// Only the first RingHandle of a Device performs the mapping; every
// later RingHandle reuses the same []byte, matching the "mmap once"
// rule in spec §4.2.
func mmapRegion(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmapRegion(mem []byte) error {
	return unix.Munmap(mem)
}
