// Copyright 2019 Yerden Zhumabekov. All rights reserved.
//
// Use of this source code is governed by MIT license which
// can be found in the LICENSE file in the root of the source
// tree.

package capture

import "github.com/go-netmap/nmcapture/netmap"

// forwardSlot implements the IPS/TAP forwarding swap: it rebinds
// slot srcIdx of the source ring to the physical buffer currently
// held by the next free slot of the chosen destination TX ring, and
// hands the source ring's old buffer to the kernel in its place. No
// packet bytes move; only the two slots' buf_idx values trade
// places, exactly as the original capture engine's NetmapWritePacket
// does it. The destination ring is chosen as srcRingID modulo the
// destination device's ring count, so N source rings fan out evenly
// across however many TX rings the peer interface has.
func forwardSlot(dst *netmap.Device, srcRingID int, rx *netmap.Ring, srcIdx uint32, drop *Livedev) error {
	dstRingID := srcRingID % dst.NumRings()
	rh := dst.Rings[dstRingID]

	rh.TxLock.Lock()
	defer rh.TxLock.Unlock()

	tx := rh.TX
	if tx.Space() == 0 {
		if drop != nil {
			drop.AddDrop(1)
		}
		return ErrTxRingFull
	}

	cur := tx.Cur()
	rxBuf := rx.BufIdx(srcIdx)
	txBuf := tx.BufIdx(cur)
	length := rx.Len(srcIdx)

	rx.SetBufIdx(srcIdx, txBuf)
	tx.SetBufIdx(cur, rxBuf)
	tx.SetLen(cur, length)

	rx.OrSlotFlags(srcIdx, netmap.SlotBufChanged)
	tx.OrSlotFlags(cur, netmap.SlotBufChanged)

	next := tx.Next(cur)
	tx.SetCur(next)
	tx.SetHead(next)

	return nil
}
