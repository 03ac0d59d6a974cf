package bpf

import "encoding/binary"

const (
	EthernetHdrLen = 14
	VlanHdrLen     = 4
)

const (
	MacAddrLen = 6
	IPv4HdrLen = 20
	TCPHdrLen  = 20
	UDPHdrLen  = 8
)

const (
	EtherTypeIPv4 = 0x0800
	EtherTypeVlan = 0x8100
	EtherTypeIPv6 = 0x86dd
)

const (
	ipProtoTCP = 6
	ipProtoUDP = 17
)

// PeelEthernet returns the byte length of the fixed Ethernet header
// at the start of p, or ok=false if p is too short to hold one.
func PeelEthernet(p []byte) (offset int, ok bool) {
	return EthernetHdrLen, len(p) >= EthernetHdrLen
}

func EthernetSrcAddr(p []byte) (addr [MacAddrLen]byte) {
	copy(addr[:], p)
	return
}

func EthernetDstAddr(p []byte) (addr [MacAddrLen]byte) {
	copy(addr[:], p[MacAddrLen:])
	return
}

func EthernetEtherType(p []byte) uint16 {
	return binary.BigEndian.Uint16(p[2*MacAddrLen:])
}

func PeelVlan(p []byte) (offset int, ok bool) {
	return VlanHdrLen, len(p) >= VlanHdrLen
}

func VlanEtherType(p []byte) uint16 {
	return binary.BigEndian.Uint16(p)
}

// PeelIPv4 validates and returns the length of an IPv4 header at the
// start of p, checking the version nibble, the header-length nibble,
// and the total-length field against the remaining buffer.
func PeelIPv4(p []byte) (offset int, ok bool) {
	if len(p) < IPv4HdrLen {
		return
	}

	var ver int
	ver, offset = int(p[0]&0xf0)>>4, int(p[0]&0xf)<<2

	if ver != 4 || offset < IPv4HdrLen {
		return
	}

	return offset, len(p) >= int(binary.BigEndian.Uint16(p[2:4]))
}

func IPv4SrcAddr(p []byte, addr []byte) { copy(addr, p[12:16]) }
func IPv4DstAddr(p []byte, addr []byte) { copy(addr, p[16:20]) }
func IPv4Proto(p []byte) byte           { return p[9] }

// PeelTCP returns the TCP header length (including options) encoded
// in the data-offset nibble.
func PeelTCP(p []byte) (offset int, ok bool) {
	if len(p) < TCPHdrLen {
		return
	}
	offset = int(p[12]&0xf0) >> 2
	return offset, len(p) >= offset
}

func TCPSrcPort(p []byte) uint16 { return binary.BigEndian.Uint16(p[0:2]) }
func TCPDstPort(p []byte) uint16 { return binary.BigEndian.Uint16(p[2:4]) }

func PeelUDP(p []byte) (offset int, ok bool) {
	if len(p) < UDPHdrLen {
		return
	}
	totalLen := int(binary.BigEndian.Uint16(p[4:6]))
	return UDPHdrLen, len(p) >= totalLen && totalLen >= UDPHdrLen
}

func UDPSrcPort(p []byte) uint16 { return binary.BigEndian.Uint16(p[0:2]) }
func UDPDstPort(p []byte) uint16 { return binary.BigEndian.Uint16(p[2:4]) }

// peelToL4 walks p past its Ethernet header and any stacked VLAN tags
// and returns the L4 protocol number (TCP=6/UDP=17) along with the L4
// payload, or ok=false if the chain doesn't resolve to IPv4.
func peelToL4(p []byte) (proto byte, l4 []byte, ok bool) {
	offset, ok := PeelEthernet(p)
	if !ok {
		return 0, nil, false
	}
	eth, rest := p[:offset], p[offset:]
	etherType := EthernetEtherType(eth)

	for etherType == EtherTypeVlan {
		if offset, ok = PeelVlan(rest); !ok {
			return 0, nil, false
		}
		eth, rest = rest[:offset], rest[offset:]
		etherType = VlanEtherType(eth)
	}

	if etherType != EtherTypeIPv4 {
		return 0, nil, false
	}

	if offset, ok = PeelIPv4(rest); !ok {
		return 0, nil, false
	}
	ip, rest := rest[:offset], rest[offset:]
	return IPv4Proto(ip), rest, true
}

// TCPPortFilter accepts IPv4/TCP packets whose source or destination
// port matches port; everything else, including non-TCP traffic, is
// rejected.
func TCPPortFilter(port uint16) FilterFunc {
	return func(p []byte) bool {
		proto, l4, ok := peelToL4(p)
		if !ok || proto != ipProtoTCP {
			return false
		}
		if _, ok := PeelTCP(l4); !ok {
			return false
		}
		return TCPSrcPort(l4) == port || TCPDstPort(l4) == port
	}
}

// UDPPortFilter accepts IPv4/UDP packets whose source or destination
// port matches port; everything else, including non-UDP traffic, is
// rejected.
func UDPPortFilter(port uint16) FilterFunc {
	return func(p []byte) bool {
		proto, l4, ok := peelToL4(p)
		if !ok || proto != ipProtoUDP {
			return false
		}
		if _, ok := PeelUDP(l4); !ok {
			return false
		}
		return UDPSrcPort(l4) == port || UDPDstPort(l4) == port
	}
}
