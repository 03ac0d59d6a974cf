package main

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"github.com/go-netmap/nmcapture/capture"
)

// logDecoder is the default capture.Decoder: it decodes down to the
// transport layer with gopacket/layers (lazily, NoCopy — this module
// never owns the ring memory once the packet moves past the release
// hook, so nothing here retains data beyond Decode's call) and logs a
// one-line summary. Full protocol analysis is out of scope for this
// module; this exists to prove a gopacket/layers pipeline can consume
// nmcapture's packets unmodified, and to give every packet a verdict.
type logDecoder struct {
	log *logrus.Entry
}

func newLogDecoder(log *logrus.Entry) *logDecoder {
	return &logDecoder{log: log}
}

func (d *logDecoder) Decode(pkt capture.Packet) error {
	pk := pkt.(*packet)

	parsed := gopacket.NewPacket(pk.data, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	fields := logrus.Fields{
		"length":    pk.ci.Length,
		"timestamp": pk.ci.Timestamp,
	}
	if net := parsed.NetworkLayer(); net != nil {
		flow := net.NetworkFlow()
		fields["src"], fields["dst"] = flow.Src(), flow.Dst()
	}
	if tl := parsed.TransportLayer(); tl != nil {
		fields["transport"] = tl.LayerType().String()
	}
	d.log.WithFields(fields).Debug("packet decoded")

	pkt.SetVerdict(capture.VerdictAccept)
	return nil
}
