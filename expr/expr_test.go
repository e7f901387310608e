package expr

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

func TestCounterMarshal(t *testing.T) {
	e := &Counter{Bytes: 0x0102030405060708, Packets: 0x1122334455667788}
	b, err := e.Marshal(byte(unix.NFPROTO_IPV4))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		t.Fatalf("NewAttributeDecoder: %v", err)
	}
	var name string
	var data []byte
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_EXPR_NAME:
			name = ad.String()
		case unix.NFTA_EXPR_DATA:
			data = ad.Bytes()
		}
	}
	if err := ad.Err(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if name != "counter" {
		t.Errorf("name = %q, want counter", name)
	}

	inner, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		t.Fatalf("inner decoder: %v", err)
	}
	inner.ByteOrder = binary.BigEndian
	for inner.Next() {
		switch inner.Type() {
		case unix.NFTA_COUNTER_BYTES:
			if got := inner.Uint64(); got != e.Bytes {
				t.Errorf("bytes = %#x, want %#x", got, e.Bytes)
			}
		case unix.NFTA_COUNTER_PACKETS:
			if got := inner.Uint64(); got != e.Packets {
				t.Errorf("packets = %#x, want %#x", got, e.Packets)
			}
		}
	}
	if err := inner.Err(); err != nil {
		t.Fatalf("inner decode: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Any
	}{
		{"counter", &Counter{Bytes: 42, Packets: 7}},
		{"verdict accept", &Verdict{Kind: VerdictAccept}},
		{"verdict drop", &Verdict{Kind: VerdictDrop}},
		{"verdict jump", &Verdict{Kind: VerdictJump, Chain: "target"}},
		{"meta dreg", &Meta{Key: MetaKeyL4Proto, Register: 1}},
		{"meta sreg", &Meta{Key: MetaKeyMark, SourceRegister: true, Register: 2}},
		{"raw", &Raw{ExprName: "quota", Data: []byte{1, 2, 3, 4}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.in.Marshal(byte(unix.NFPROTO_INET))
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			out, err := ParseOne(byte(unix.NFPROTO_INET), b)
			if err != nil {
				t.Fatalf("ParseOne: %v", err)
			}
			if diff := cmp.Diff(tc.in, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseOneUnknownKindFallsBackToRaw(t *testing.T) {
	in := &Raw{ExprName: "notrack", Data: nil}
	b, err := in.Marshal(0)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := ParseOne(0, b)
	if err != nil {
		t.Fatalf("ParseOne: %v", err)
	}
	raw, ok := out.(*Raw)
	if !ok {
		t.Fatalf("got %T, want *Raw", out)
	}
	if raw.ExprName != "notrack" {
		t.Errorf("name = %q, want notrack", raw.ExprName)
	}
}

func TestParseOneMissingName(t *testing.T) {
	b, err := netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.NLA_F_NESTED | unix.NFTA_EXPR_DATA, Data: []byte{0, 0, 0, 0}},
	})
	if err != nil {
		t.Fatalf("MarshalAttributes: %v", err)
	}
	if _, err := ParseOne(0, b); err == nil {
		t.Fatal("expected error for fragment without NFTA_EXPR_NAME")
	}
}

func TestParseList(t *testing.T) {
	frags := []Any{
		&Counter{Packets: 1},
		&Verdict{Kind: VerdictAccept},
	}
	var elems []netlink.Attribute
	for _, e := range frags {
		b, err := e.Marshal(0)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		elems = append(elems, netlink.Attribute{
			Type: unix.NLA_F_NESTED | unix.NFTA_LIST_ELEM,
			Data: b,
		})
	}
	list, err := netlink.MarshalAttributes(elems)
	if err != nil {
		t.Fatalf("MarshalAttributes: %v", err)
	}

	out, err := ParseList(0, list)
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if _, ok := out[0].(*Counter); !ok {
		t.Errorf("out[0] = %T, want *Counter", out[0])
	}
	if v, ok := out[1].(*Verdict); !ok || v.Kind != VerdictAccept {
		t.Errorf("out[1] = %#v, want accept verdict", out[1])
	}
}
