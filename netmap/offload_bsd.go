// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

//go:build freebsd || darwin

package netmap

// GetIfaceOffloading reports whether the named interface has generic
// receive offload enabled. BSD/Darwin expose no ethtool-equivalent
// ioctl, so there is nothing to query and nothing to warn about.
func GetIfaceOffloading(name string) (bool, error) {
	return false, nil
}
