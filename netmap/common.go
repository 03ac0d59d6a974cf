// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package netmap

import (
	"errors"
	"syscall"
)

// IsEINTR reports whether err is syscall.EINTR, unwrapping as needed.
// Exported so capture's poll loop can retry on a signal interruption
// without its own copy of the check.
func IsEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
