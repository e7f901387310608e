package expr

import (
	"encoding/binary"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

func init() {
	Register("meta", func() Any { return &Meta{} })
}

// MetaKey selects which packet metadata a Meta expression reads.
type MetaKey uint32

// Commonly used MetaKey values.
const (
	MetaKeyLen      MetaKey = unix.NFT_META_LEN
	MetaKeyProtocol MetaKey = unix.NFT_META_PROTOCOL
	MetaKeyMark     MetaKey = unix.NFT_META_MARK
	MetaKeyIif      MetaKey = unix.NFT_META_IIF
	MetaKeyOif      MetaKey = unix.NFT_META_OIF
	MetaKeyIifname  MetaKey = unix.NFT_META_IIFNAME
	MetaKeyOifname  MetaKey = unix.NFT_META_OIFNAME
	MetaKeyL4Proto  MetaKey = unix.NFT_META_L4PROTO
	MetaKeyNfproto  MetaKey = unix.NFT_META_NFPROTO
)

// Meta loads packet metadata into a register, or stores a register into
// packet metadata when SourceRegister is set.
type Meta struct {
	Key            MetaKey
	SourceRegister bool
	Register       uint32
}

// Name implements Any.
func (e *Meta) Name() string { return "meta" }

// Marshal implements Any.
func (e *Meta) Marshal(fam byte) ([]byte, error) {
	regType := uint16(unix.NFTA_META_DREG)
	if e.SourceRegister {
		regType = unix.NFTA_META_SREG
	}
	data, err := bigEndianAttrs([]netlink.Attribute{
		{Type: unix.NFTA_META_KEY, Data: putBE32(uint32(e.Key))},
		{Type: regType, Data: putBE32(e.Register)},
	})
	if err != nil {
		return nil, err
	}
	return marshalExpr("meta", data)
}

// Unmarshal implements Any.
func (e *Meta) Unmarshal(fam byte, data []byte) error {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return err
	}
	ad.ByteOrder = binary.BigEndian
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_META_KEY:
			e.Key = MetaKey(ad.Uint32())
		case unix.NFTA_META_DREG:
			e.SourceRegister = false
			e.Register = ad.Uint32()
		case unix.NFTA_META_SREG:
			e.SourceRegister = true
			e.Register = ad.Uint32()
		}
	}
	return ad.Err()
}
