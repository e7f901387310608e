package expr

import (
	"encoding/binary"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

func init() {
	Register("counter", func() Any { return &Counter{} })
}

// Counter counts packets and bytes traversing the rule.
type Counter struct {
	Bytes   uint64
	Packets uint64
}

// Name implements Any.
func (e *Counter) Name() string { return "counter" }

// Marshal implements Any.
func (e *Counter) Marshal(fam byte) ([]byte, error) {
	data, err := bigEndianAttrs([]netlink.Attribute{
		{Type: unix.NFTA_COUNTER_BYTES, Data: putBE64(e.Bytes)},
		{Type: unix.NFTA_COUNTER_PACKETS, Data: putBE64(e.Packets)},
	})
	if err != nil {
		return nil, err
	}
	return marshalExpr("counter", data)
}

// Unmarshal implements Any.
func (e *Counter) Unmarshal(fam byte, data []byte) error {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return err
	}
	ad.ByteOrder = binary.BigEndian
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_COUNTER_BYTES:
			e.Bytes = ad.Uint64()
		case unix.NFTA_COUNTER_PACKETS:
			e.Packets = ad.Uint64()
		}
	}
	return ad.Err()
}
