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

// siocEthtool and ethtoolGGro mirror Linux's SIOCETHTOOL request and
// the ETHTOOL_GGRO sub-command used to query whether generic receive
// offload is enabled on an interface.
const (
	siocEthtool = 0x8946
	ethtoolGGro = 0x0000002b
)

// ethtoolValue mirrors struct ethtool_value: a command code in, a
// single uint32 result out.
type ethtoolValue struct {
	cmd  uint32
	data uint32
}

// ifreqData mirrors the part of struct ifreq ETHTOOL requests use: an
// interface name plus a pointer to the command block.
type ifreqData struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
}

// GetIfaceOffloading reports whether the named interface has generic
// receive offload (GRO) enabled. It mirrors GetIfaceOffloading from
// the original capture engine (source-netmap.c:583-585): queried once
// during thread Init purely to emit a warning, never a precondition
// for capture to proceed, since GRO/LRO coalescing packets before they
// reach netmap degrades capture fidelity but does not break it.
func GetIfaceOffloading(name string) (bool, error) {
	fd, err := controlSocket()
	if err != nil {
		return false, newIfaceControlError("get", name, errnoOf(err))
	}
	defer unix.Close(fd)

	var val ethtoolValue
	val.cmd = ethtoolGGro

	var ifr ifreqData
	copy(ifr.name[:], name)
	ifr.data = uintptr(unsafe.Pointer(&val))

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd),
		uintptr(siocEthtool), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return false, newIfaceControlError("get", name, errno)
	}
	return val.data != 0, nil
}
