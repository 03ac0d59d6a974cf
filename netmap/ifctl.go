// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import "golang.org/x/sys/unix"

// Flag is a bitmask of interface flags (IFF_UP, IFF_PROMISC, ...) as
// reported by the OS network-control interface.
type Flag uint32

const (
	FlagUp      Flag = unix.IFF_UP
	FlagPromisc Flag = unix.IFF_PROMISC
	FlagRunning Flag = unix.IFF_RUNNING
)

// IsUp reports whether FlagUp is set.
func (f Flag) IsUp() bool { return f&FlagUp != 0 }

// IsPromisc reports whether FlagPromisc is set.
func (f Flag) IsPromisc() bool { return f&FlagPromisc != 0 }

// GetFlags queries the administrative/operational flags of the named
// interface through the OS network-control interface (SIOCGIFFLAGS).
//
// On platforms that split the flags word across two 16-bit struct
// members (e.g. FreeBSD's ifr_flags/ifr_flagshigh), the low and high
// halves are composed transparently into a single 32-bit value; the
// caller never sees the split.
func GetFlags(name string) (Flag, error) {
	fd, err := controlSocket()
	if err != nil {
		return 0, newIfaceControlError("get", name, errnoOf(err))
	}
	defer unix.Close(fd)

	v, err := getIfFlags(fd, name)
	if err != nil {
		return 0, newIfaceControlError("get", name, errnoOf(err))
	}
	return Flag(v), nil
}

// SetFlags sets the administrative flags of the named interface
// through the OS network-control interface (SIOCSIFFLAGS). See
// GetFlags for the low/high word composition note.
func SetFlags(name string, flags Flag) error {
	fd, err := controlSocket()
	if err != nil {
		return newIfaceControlError("set", name, errnoOf(err))
	}
	defer unix.Close(fd)

	if err := setIfFlags(fd, name, uint32(flags)); err != nil {
		return newIfaceControlError("set", name, errnoOf(err))
	}
	return nil
}

func controlSocket() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
}

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EINVAL
}
