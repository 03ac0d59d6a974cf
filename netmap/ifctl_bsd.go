// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

//go:build freebsd || darwin

package netmap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ifreqFlags mirrors FreeBSD/Darwin's split struct ifreq layout, where
// the flags word is divided into ifr_flags (low 16 bits) and
// ifr_flagshigh (high 16 bits). getIfFlags/setIfFlags compose and
// decompose this transparently so GetFlags/SetFlags only ever deal in
// a single 32-bit value, per spec.
type ifreqFlags struct {
	name      [unix.IFNAMSIZ]byte
	flags     int16
	flagshigh int16
}

func getIfFlags(fd int, name string) (uint32, error) {
	var ifr ifreqFlags
	copy(ifr.name[:], name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.SIOCGIFFLAGS), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return 0, errno
	}
	return uint32(uint16(ifr.flags)) | uint32(uint16(ifr.flagshigh))<<16, nil
}

func setIfFlags(fd int, name string, flags uint32) error {
	var ifr ifreqFlags
	copy(ifr.name[:], name)
	ifr.flags = int16(flags & 0xffff)
	ifr.flagshigh = int16(flags >> 16)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(unix.SIOCSIFFLAGS), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return errno
	}
	return nil
}
