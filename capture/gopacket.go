// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import (
	"time"

	"github.com/google/gopacket"
)

// captureInfo builds gopacket.CaptureInfo for a ring slot, the way
// the teacher's RecvReq.CaptureInfo does for an SNF receive
// descriptor, so a Decoder built on gopacket/layers can consume our
// packets without adaptation.
func captureInfo(ts time.Time, ifIndex, length int) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:      ts,
		CaptureLength:  length,
		Length:         length,
		InterfaceIndex: ifIndex,
	}
}
