package expr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

func init() {
	Register("immediate", func() Any { return &Verdict{} })
}

// VerdictKind is the outcome a Verdict expression produces. Values match
// the kernel's NF_* and NFT_* verdict codes.
type VerdictKind int32

// Possible VerdictKind values.
const (
	VerdictReturn VerdictKind = iota - 5
	VerdictGoto
	VerdictJump
	VerdictBreak
	VerdictContinue
	VerdictDrop
	VerdictAccept
)

// Verdict terminates rule evaluation with an outcome, optionally targeting
// another chain for jump and goto. On the wire it is an immediate
// expression loading the verdict register:
//
//	NFTA_EXPR_NAME { "immediate\x00" }
//	NFTA_EXPR_DATA | NLA_F_NESTED {
//	  NFTA_IMMEDIATE_DREG { NFT_REG_VERDICT }
//	  NFTA_IMMEDIATE_DATA | NLA_F_NESTED {
//	    NFTA_DATA_VERDICT | NLA_F_NESTED {
//	      NFTA_VERDICT_CODE { code }
//	      NFTA_VERDICT_CHAIN { chain\x00 }   (jump/goto only)
//	    }
//	  }
//	}
type Verdict struct {
	Kind  VerdictKind
	Chain string
}

// Name implements Any.
func (e *Verdict) Name() string { return "immediate" }

// Marshal implements Any.
func (e *Verdict) Marshal(fam byte) ([]byte, error) {
	code := []netlink.Attribute{
		{Type: unix.NFTA_VERDICT_CODE, Data: putBE32(uint32(e.Kind))},
	}
	if e.Chain != "" {
		code = append(code, netlink.Attribute{
			Type: unix.NFTA_VERDICT_CHAIN,
			Data: append([]byte(e.Chain), 0),
		})
	}
	codeData, err := bigEndianAttrs(code)
	if err != nil {
		return nil, err
	}
	immData, err := bigEndianAttrs([]netlink.Attribute{
		{Type: unix.NLA_F_NESTED | unix.NFTA_DATA_VERDICT, Data: codeData},
	})
	if err != nil {
		return nil, err
	}
	data, err := bigEndianAttrs([]netlink.Attribute{
		{Type: unix.NFTA_IMMEDIATE_DREG, Data: putBE32(unix.NFT_REG_VERDICT)},
		{Type: unix.NLA_F_NESTED | unix.NFTA_IMMEDIATE_DATA, Data: immData},
	})
	if err != nil {
		return nil, err
	}
	return marshalExpr("immediate", data)
}

// Unmarshal implements Any.
func (e *Verdict) Unmarshal(fam byte, data []byte) error {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return err
	}
	ad.ByteOrder = binary.BigEndian
	for ad.Next() {
		if ad.Type() != unix.NFTA_IMMEDIATE_DATA {
			continue
		}
		nested, err := netlink.NewAttributeDecoder(ad.Bytes())
		if err != nil {
			return err
		}
		nested.ByteOrder = binary.BigEndian
		for nested.Next() {
			if nested.Type() != unix.NFTA_DATA_VERDICT {
				continue
			}
			if err := e.unmarshalVerdict(nested.Bytes()); err != nil {
				return err
			}
		}
		if err := nested.Err(); err != nil {
			return err
		}
	}
	return ad.Err()
}

func (e *Verdict) unmarshalVerdict(data []byte) error {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return err
	}
	ad.ByteOrder = binary.BigEndian
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_VERDICT_CODE:
			b := ad.Bytes()
			if len(b) != 4 {
				return fmt.Errorf("verdict code has length %d, want 4", len(b))
			}
			e.Kind = VerdictKind(int32(binary.BigEndian.Uint32(b)))
		case unix.NFTA_VERDICT_CHAIN:
			e.Chain = string(bytes.TrimRight(ad.Bytes(), "\x00"))
		}
	}
	return ad.Err()
}
