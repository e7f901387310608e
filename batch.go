package nftwire

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"golang.org/x/sys/unix"
)

// Op is the operation a message performs on its object.
type Op uint8

// Possible Op values.
const (
	// OpAdd creates the object, appending rules at their position.
	OpAdd Op = iota
	// OpDelete removes the object.
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Netlink header flags per operation, as the nf_tables ABI expects them.
// NLM_F_REQUEST is always set; it marks the message as kernel-bound.
const (
	addFlags = netlink.Request | netlink.Acknowledge | netlink.Create |
		netlink.HeaderFlags(unix.NLM_F_APPEND) | netlink.HeaderFlags(unix.NLM_F_EXCL)
	deleteFlags = netlink.Request | netlink.Acknowledge
)

// An Object can serialize itself into one netlink message for a given
// operation and caller-supplied sequence number. Table, Chain and Rule
// implement it.
type Object interface {
	message(op Op, seq uint32) (netlink.Message, error)
}

// subsysType qualifies a NFT_MSG_* opcode with the nftables subsystem id,
// forming the u16 that goes into the netlink header type field.
func subsysType(msg uint16) netlink.HeaderType {
	return netlink.HeaderType(unix.NFNL_SUBSYS_NFTABLES<<8 | msg)
}

// nfHeader builds the nfgenmsg that prefixes every nftables payload:
// one byte of address family, the nfnetlink version, and a big-endian
// resource id.
func nfHeader(family Family, resID uint16) []byte {
	return append([]byte{byte(family), unix.NFNETLINK_V0}, be16(resID)...)
}

// A Batch is an ordered set of netlink messages sent to the kernel as one
// transaction. Messages between Begin and End markers are applied
// atomically by nf_tables.
//
// The Batch does not assign sequence numbers: the transport owns the
// monotonic counter and supplies one value per call.
type Batch struct {
	msgs []netlink.Message
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Begin appends the batch-begin marker. Must precede any Add calls that are
// meant to be applied transactionally.
func (b *Batch) Begin(seq uint32) {
	b.msgs = append(b.msgs, netlink.Message{
		Header: netlink.Header{
			Type:     netlink.HeaderType(unix.NFNL_MSG_BATCH_BEGIN),
			Flags:    netlink.Request,
			Sequence: seq,
		},
		Data: nfHeader(FamilyUnspec, unix.NFNL_SUBSYS_NFTABLES),
	})
}

// Add serializes obj for op and appends the resulting message.
func (b *Batch) Add(obj Object, op Op, seq uint32) error {
	msg, err := obj.message(op, seq)
	if err != nil {
		return fmt.Errorf("building %v message: %w", op, err)
	}
	b.msgs = append(b.msgs, msg)
	return nil
}

// End appends the batch-end marker.
func (b *Batch) End(seq uint32) {
	b.msgs = append(b.msgs, netlink.Message{
		Header: netlink.Header{
			Type:     netlink.HeaderType(unix.NFNL_MSG_BATCH_END),
			Flags:    netlink.Request,
			Sequence: seq,
		},
		Data: nfHeader(FamilyUnspec, unix.NFNL_SUBSYS_NFTABLES),
	})
}

// Len reports the number of messages in the batch, markers included.
func (b *Batch) Len() int {
	return len(b.msgs)
}

// Messages returns the accumulated messages in append order. The slice is
// shared with the batch; callers must not mutate it while still appending.
func (b *Batch) Messages() []netlink.Message {
	return b.msgs
}

// nlmsgHdrLen is the size of struct nlmsghdr. nlmsgAlignTo is the payload
// alignment netlink mandates.
const (
	nlmsgHdrLen  = 16
	nlmsgAlignTo = 4
)

// Marshal encodes the batch into raw netlink wire format. Each message is
// written in two steps: a fixed-size header is reserved at the cursor, the
// payload is appended after it, and only then is the header's length field
// patched with the true total size. The header fields are host-endian per
// the netlink ABI.
func (b *Batch) Marshal() ([]byte, error) {
	var buf []byte
	for _, m := range b.msgs {
		var err error
		buf, err = appendMessage(buf, m)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendMessage(buf []byte, m netlink.Message) ([]byte, error) {
	if len(buf)%nlmsgAlignTo != 0 {
		return nil, fmt.Errorf("misaligned message cursor at %d", len(buf))
	}
	start := len(buf)
	buf = append(buf, make([]byte, nlmsgHdrLen)...)
	hdr := buf[start : start+nlmsgHdrLen]
	nlenc.PutUint16(hdr[4:6], uint16(m.Header.Type))
	nlenc.PutUint16(hdr[6:8], uint16(m.Header.Flags))
	nlenc.PutUint32(hdr[8:12], m.Header.Sequence)
	nlenc.PutUint32(hdr[12:16], m.Header.PID)

	buf = append(buf, m.Data...)

	// The length field covers header plus unpadded payload; it is only
	// known once the payload has been appended.
	nlenc.PutUint32(buf[start:start+4], uint32(len(buf)-start))

	if pad := nlmsgAlign(len(buf)) - len(buf); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf, nil
}

func nlmsgAlign(n int) int {
	return (n + nlmsgAlignTo - 1) &^ (nlmsgAlignTo - 1)
}
