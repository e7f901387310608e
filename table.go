package nftwire

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// A Table names an address-family-scoped namespace for chains and rules.
type Table struct {
	arena  Arena
	raw    *rawTable
	closed bool
}

// TableOption configures table construction.
type TableOption func(*Table)

// WithArena makes the table and every object constructed beneath it
// allocate raw state from a. Defaults to HeapArena.
func WithArena(a Arena) TableOption {
	return func(t *Table) { t.arena = a }
}

// NewTable allocates a table with the given name and family.
func NewTable(name string, family Family, opts ...TableOption) (*Table, error) {
	t := &Table{arena: HeapArena{}}
	for _, opt := range opts {
		opt(t)
	}
	raw, err := t.arena.Alloc(KindTable)
	if err != nil {
		return nil, fmt.Errorf("allocating table: %w", err)
	}
	rt := raw.(*rawTable)
	rt.name = name
	rt.family = family
	t.raw = rt
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.raw.name }

// SetName updates the table name.
func (t *Table) SetName(name string) { t.raw.name = name }

// Family returns the table's address family.
func (t *Table) Family() Family { return t.raw.family }

// Flags returns the table flag bits (NFT_TABLE_F_*).
func (t *Table) Flags() uint32 { return t.raw.flags }

// SetFlags updates the table flag bits.
func (t *Table) SetFlags(flags uint32) { t.raw.flags = flags }

// Close releases the table's raw state back to its arena. Safe to call more
// than once; only the first call releases.
func (t *Table) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.arena.Release(t.raw)
}

// payload serializes the table's current attribute state.
func (rt *rawTable) payload() ([]byte, error) {
	return netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.NFTA_TABLE_NAME, Data: nulString(rt.name)},
		{Type: unix.NFTA_TABLE_FLAGS, Data: be32(rt.flags)},
	})
}

// message implements Object.
func (t *Table) message(op Op, seq uint32) (netlink.Message, error) {
	data, err := t.raw.payload()
	if err != nil {
		return netlink.Message{}, err
	}
	var typ netlink.HeaderType
	var flags netlink.HeaderFlags
	switch op {
	case OpAdd:
		typ = subsysType(unix.NFT_MSG_NEWTABLE)
		flags = netlink.Request | netlink.Acknowledge | netlink.Create
	case OpDelete:
		typ = subsysType(unix.NFT_MSG_DELTABLE)
		flags = deleteFlags
	default:
		return netlink.Message{}, fmt.Errorf("unsupported table operation %v", op)
	}
	return netlink.Message{
		Header: netlink.Header{
			Type:     typ,
			Flags:    flags,
			Sequence: seq,
		},
		Data: append(nfHeader(t.raw.family, 0), data...),
	}, nil
}

// nulString renders s as the null-terminated string attribute payload the
// nf_tables ABI uses for names.
func nulString(s string) []byte {
	return append([]byte(s), 0)
}
