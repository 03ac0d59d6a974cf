// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

//go:build linux

package netmap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ifreqFlags mirrors Linux's struct ifreq truncated to the name and
// flags members. The kernel keeps the full 32-bit flag word even
// though historically only the low 16 bits were documented; we read
// and write all 32 bits so extended bits (IFF_LOWER_UP, IFF_DORMANT)
// survive a round trip.
type ifreqFlags struct {
	name  [unix.IFNAMSIZ]byte
	flags uint32
}

func getIfFlags(fd int, name string) (uint32, error) {
	var ifr ifreqFlags
	copy(ifr.name[:], name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.SIOCGIFFLAGS), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return 0, errno
	}
	return ifr.flags, nil
}

func setIfFlags(fd int, name string, flags uint32) error {
	var ifr ifreqFlags
	copy(ifr.name[:], name)
	ifr.flags = flags
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.SIOCSIFFLAGS), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return errno
	}
	return nil
}
