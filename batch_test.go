package nftwire

import (
	"testing"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Documented bit values from the netlink and nf_tables ABIs, spelled out so
// the assertions below are byte-exact rather than restating the constants
// under test.
const (
	flagRequest = 0x0001
	flagAck     = 0x0004
	flagExcl    = 0x0200
	flagCreate  = 0x0400
	flagAppend  = 0x0800
)

func TestRuleMessageHeaders(t *testing.T) {
	_, chain := newTestChain(t)
	rule, err := NewRule(chain)
	require.NoError(t, err)

	t.Run("add", func(t *testing.T) {
		msg, err := rule.message(OpAdd, 42)
		require.NoError(t, err)
		require.Equal(t, uint16(0x0a06), uint16(msg.Header.Type), "NFNL_SUBSYS_NFTABLES<<8 | NFT_MSG_NEWRULE")
		require.Equal(t, uint16(flagRequest|flagAck|flagCreate|flagAppend|flagExcl), uint16(msg.Header.Flags))
		require.Equal(t, uint32(42), msg.Header.Sequence)
	})

	t.Run("delete", func(t *testing.T) {
		msg, err := rule.message(OpDelete, 7)
		require.NoError(t, err)
		require.Equal(t, uint16(0x0a08), uint16(msg.Header.Type), "NFNL_SUBSYS_NFTABLES<<8 | NFT_MSG_DELRULE")
		require.Equal(t, uint16(flagRequest|flagAck), uint16(msg.Header.Flags))
		require.Equal(t, uint32(7), msg.Header.Sequence)
	})
}

func TestMessageCarriesNfgenmsg(t *testing.T) {
	table, err := NewTable("nat", FamilyIPv6)
	require.NoError(t, err)
	chain, err := NewChain(table, "postrouting")
	require.NoError(t, err)
	rule, err := NewRule(chain)
	require.NoError(t, err)

	msg, err := rule.message(OpAdd, 1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(msg.Data), 4)
	require.Equal(t, byte(unix.NFPROTO_IPV6), msg.Data[0], "address family")
	require.Equal(t, byte(unix.NFNETLINK_V0), msg.Data[1], "nfnetlink version")
	require.Equal(t, []byte{0, 0}, msg.Data[2:4], "res_id")
}

func TestBatchFraming(t *testing.T) {
	_, chain := newTestChain(t)
	rule, err := NewRule(chain)
	require.NoError(t, err)

	b := NewBatch()
	b.Begin(10)
	require.NoError(t, b.Add(rule, OpAdd, 11))
	b.End(12)

	msgs := b.Messages()
	require.Len(t, msgs, 3)

	begin := msgs[0]
	require.Equal(t, uint16(unix.NFNL_MSG_BATCH_BEGIN), uint16(begin.Header.Type))
	require.Equal(t, uint16(flagRequest), uint16(begin.Header.Flags))
	require.Equal(t, uint32(10), begin.Header.Sequence)
	// Batch markers address the nftables subsystem via res_id.
	require.Equal(t, []byte{0, unix.NFNETLINK_V0, 0, unix.NFNL_SUBSYS_NFTABLES}, begin.Data)

	end := msgs[2]
	require.Equal(t, uint16(unix.NFNL_MSG_BATCH_END), uint16(end.Header.Type))
	require.Equal(t, uint32(12), end.Header.Sequence)
}

func TestBatchMarshalPatchesLengths(t *testing.T) {
	_, chain := newTestChain(t)
	rule, err := NewRule(chain)
	require.NoError(t, err)
	rule.SetHandle(99)

	b := NewBatch()
	b.Begin(1)
	require.NoError(t, b.Add(rule, OpAdd, 2))
	b.End(3)

	wire, err := b.Marshal()
	require.NoError(t, err)

	// Walk the buffer using only the patched length fields; the walk must
	// visit exactly the three messages and consume every byte.
	var seen []uint16
	off := 0
	for off < len(wire) {
		require.LessOrEqual(t, off+nlmsgHdrLen, len(wire), "truncated header at %d", off)
		length := int(nlenc.Uint32(wire[off : off+4]))
		typ := nlenc.Uint16(wire[off+4 : off+6])
		seq := nlenc.Uint32(wire[off+8 : off+12])
		require.GreaterOrEqual(t, length, nlmsgHdrLen)
		require.LessOrEqual(t, off+length, len(wire), "length overruns buffer")

		seen = append(seen, typ)
		require.Equal(t, uint32(len(seen)), seq, "sequence numbers in order")
		off += nlmsgAlign(length)
	}
	require.Equal(t, len(wire), off, "trailing bytes after last message")
	require.Equal(t, []uint16{
		unix.NFNL_MSG_BATCH_BEGIN,
		uint16(0x0a06),
		unix.NFNL_MSG_BATCH_END,
	}, seen)
}

func TestTableMessages(t *testing.T) {
	table, err := NewTable("filter", FamilyInet)
	require.NoError(t, err)

	msg, err := table.message(OpAdd, 5)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0a00), uint16(msg.Header.Type), "NFT_MSG_NEWTABLE")
	require.Equal(t, uint16(flagRequest|flagAck|flagCreate), uint16(msg.Header.Flags))

	msg, err = table.message(OpDelete, 6)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0a02), uint16(msg.Header.Type), "NFT_MSG_DELTABLE")
	require.Equal(t, uint16(flagRequest|flagAck), uint16(msg.Header.Flags))
}

func TestChainMessageAttributes(t *testing.T) {
	table, err := NewTable("filter", FamilyInet)
	require.NoError(t, err)
	chain, err := NewChain(table, "forward")
	require.NoError(t, err)
	chain.SetHook(HookForward, -10)
	chain.SetType(ChainTypeFilter)
	chain.SetPolicy(PolicyAccept)

	msg, err := chain.message(OpAdd, 1)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0a03), uint16(msg.Header.Type), "NFT_MSG_NEWCHAIN")

	attrs := decodeAttrs(t, msg.Data[4:])
	require.Equal(t, []byte("filter\x00"), attrs[unix.NFTA_CHAIN_TABLE])
	require.Equal(t, []byte("forward\x00"), attrs[unix.NFTA_CHAIN_NAME])
	require.Equal(t, []byte("filter\x00"), attrs[unix.NFTA_CHAIN_TYPE])
	require.Equal(t, []byte{0, 0, 0, 1}, attrs[unix.NFTA_CHAIN_POLICY], "accept policy, big-endian")

	hook := decodeAttrs(t, attrs[unix.NFTA_CHAIN_HOOK])
	require.Equal(t, []byte{0, 0, 0, byte(HookForward)}, hook[unix.NFTA_HOOK_HOOKNUM])
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xf6}, hook[unix.NFTA_HOOK_PRIORITY], "-10 big-endian")
}

// decodeAttrs flattens one attribute level into a type → payload map,
// stripping the nested flag.
func decodeAttrs(t *testing.T, b []byte) map[uint16][]byte {
	t.Helper()
	ad, err := netlink.NewAttributeDecoder(b)
	require.NoError(t, err)
	out := make(map[uint16][]byte)
	for ad.Next() {
		out[ad.Type()&^uint16(unix.NLA_F_NESTED)] = ad.Bytes()
	}
	require.NoError(t, ad.Err())
	return out
}
