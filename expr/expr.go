// Package expr provides the expression contract rules are built from, plus
// encoders for a handful of common expression kinds.
//
// An expression serializes to the attribute pair the nf_tables ABI expects
// inside a rule's expression list:
//
//	NFTA_EXPR_NAME { "counter\x00" }
//	NFTA_EXPR_DATA | NLA_F_NESTED { kind-specific attributes }
//
// Anything satisfying [Any] can be appended to a rule; evaluation order is
// append order and the kernel stops evaluating a rule at the first
// non-matching expression.
package expr

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// Any is the contract every expression kind satisfies.
type Any interface {
	// Name is the kernel expression type name ("counter", "immediate", ...).
	Name() string
	// Marshal encodes the expression into its NFTA_EXPR_NAME/NFTA_EXPR_DATA
	// attribute pair for the given address family.
	Marshal(fam byte) ([]byte, error)
	// Unmarshal decodes the NFTA_EXPR_DATA payload.
	Unmarshal(fam byte, data []byte) error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Any)
)

// Register makes an expression kind available to ParseList. Later
// registrations for the same name win.
func Register(name string, fn func() Any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// New returns a fresh, zero-valued expression for a registered name.
func New(name string) (Any, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// marshalExpr wraps a kind-specific payload in the NAME/DATA attribute pair.
func marshalExpr(name string, data []byte) ([]byte, error) {
	return netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.NFTA_EXPR_NAME, Data: append([]byte(name), 0)},
		{Type: unix.NLA_F_NESTED | unix.NFTA_EXPR_DATA, Data: data},
	})
}

// bigEndianAttrs marshals attrs whose values were already encoded
// big-endian, which is all of them in this package.
func bigEndianAttrs(attrs []netlink.Attribute) ([]byte, error) {
	return netlink.MarshalAttributes(attrs)
}

// ParseOne decodes a single expression fragment (the payload of one
// NFTA_LIST_ELEM). Unregistered expression names decode into *Raw so that
// unknown kernel expressions survive a list round trip.
func ParseOne(fam byte, b []byte) (Any, error) {
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return nil, err
	}
	ad.ByteOrder = binary.BigEndian
	var (
		name string
		data []byte
	)
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_EXPR_NAME:
			name = ad.String()
		case unix.NFTA_EXPR_DATA:
			data = ad.Bytes()
		}
	}
	if err := ad.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("expression fragment missing NFTA_EXPR_NAME")
	}
	e, ok := New(name)
	if !ok {
		e = &Raw{ExprName: name}
	}
	if err := e.Unmarshal(fam, data); err != nil {
		return nil, fmt.Errorf("decoding %q expression: %w", name, err)
	}
	return e, nil
}

// ParseList decodes the payload of a rule's NFTA_RULE_EXPRESSIONS attribute
// into expressions, preserving kernel order.
func ParseList(fam byte, b []byte) ([]Any, error) {
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return nil, err
	}
	ad.ByteOrder = binary.BigEndian
	var exprs []Any
	for ad.Next() {
		if ad.Type() != unix.NFTA_LIST_ELEM {
			continue
		}
		e, err := ParseOne(fam, ad.Bytes())
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if err := ad.Err(); err != nil {
		return nil, err
	}
	return exprs, nil
}

func putBE32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func putBE64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
