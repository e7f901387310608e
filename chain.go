package nftwire

import (
	"fmt"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// ChainHook is the netfilter hook a base chain attaches to.
type ChainHook uint32

// Possible ChainHook values.
const (
	HookPrerouting  ChainHook = unix.NF_INET_PRE_ROUTING
	HookInput       ChainHook = unix.NF_INET_LOCAL_IN
	HookForward     ChainHook = unix.NF_INET_FORWARD
	HookOutput      ChainHook = unix.NF_INET_LOCAL_OUT
	HookPostrouting ChainHook = unix.NF_INET_POST_ROUTING
)

// ChainType selects the kernel subsystem a base chain participates in.
type ChainType string

// Possible ChainType values.
const (
	ChainTypeFilter ChainType = "filter"
	ChainTypeRoute  ChainType = "route"
	ChainTypeNAT    ChainType = "nat"
)

// ChainPolicy is the verdict applied when no rule in a base chain matches.
type ChainPolicy uint32

// Possible ChainPolicy values.
const (
	PolicyDrop ChainPolicy = iota
	PolicyAccept
)

// A Chain is an ordered hook point inside a Table. The chain keeps its
// Table reachable for as long as it exists; the table's name and family are
// read through that reference during serialization.
type Chain struct {
	table  *Table
	raw    *rawChain
	closed bool
}

// NewChain allocates a chain in the given table, snapshotting the table's
// family and name into the chain's raw state.
func NewChain(table *Table, name string) (*Chain, error) {
	if table.closed {
		return nil, fmt.Errorf("creating chain %q: %w", name, ErrClosed)
	}
	raw, err := table.arena.Alloc(KindChain)
	if err != nil {
		return nil, fmt.Errorf("allocating chain: %w", err)
	}
	rc := raw.(*rawChain)
	rc.family = table.Family()
	rc.table = table.Name()
	rc.name = name
	return &Chain{table: table, raw: rc}, nil
}

// Table returns the owning table.
func (c *Chain) Table() *Table { return c.table }

// Name returns the chain name.
func (c *Chain) Name() string { return c.raw.name }

// SetName updates the chain name.
func (c *Chain) SetName(name string) { c.raw.name = name }

// SetHook makes the chain a base chain attached to hook with the given
// priority. Chains without a hook are regular chains only reachable via
// jump or goto verdicts.
func (c *Chain) SetHook(hook ChainHook, priority int32) {
	h := uint32(hook)
	c.raw.hooknum = &h
	c.raw.priority = &priority
}

// SetType sets the base chain type.
func (c *Chain) SetType(t ChainType) { c.raw.ctype = t }

// SetPolicy sets the base chain default policy.
func (c *Chain) SetPolicy(p ChainPolicy) { c.raw.policy = &p }

// Policy returns the chain policy, if one was set.
func (c *Chain) Policy() (ChainPolicy, bool) {
	if c.raw.policy == nil {
		return 0, false
	}
	return *c.raw.policy, true
}

// Close releases the chain's raw state back to the table's arena. The
// owning Table is unaffected.
func (c *Chain) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.table.arena.Release(c.raw)
}

// payload serializes the chain's current attribute state. Hook and priority
// travel together in one nested NFTA_CHAIN_HOOK attribute.
func (rc *rawChain) payload() ([]byte, error) {
	attrs := []netlink.Attribute{
		{Type: unix.NFTA_CHAIN_TABLE, Data: nulString(rc.table)},
		{Type: unix.NFTA_CHAIN_NAME, Data: nulString(rc.name)},
	}
	if rc.hooknum != nil && rc.priority != nil {
		hook, err := netlink.MarshalAttributes([]netlink.Attribute{
			{Type: unix.NFTA_HOOK_HOOKNUM, Data: be32(*rc.hooknum)},
			{Type: unix.NFTA_HOOK_PRIORITY, Data: be32(uint32(*rc.priority))},
		})
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NLA_F_NESTED | unix.NFTA_CHAIN_HOOK,
			Data: hook,
		})
	}
	if rc.policy != nil {
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NFTA_CHAIN_POLICY,
			Data: be32(uint32(*rc.policy)),
		})
	}
	if rc.ctype != "" {
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NFTA_CHAIN_TYPE,
			Data: nulString(string(rc.ctype)),
		})
	}
	return netlink.MarshalAttributes(attrs)
}

// message implements Object.
func (c *Chain) message(op Op, seq uint32) (netlink.Message, error) {
	data, err := c.raw.payload()
	if err != nil {
		return netlink.Message{}, err
	}
	var typ netlink.HeaderType
	var flags netlink.HeaderFlags
	switch op {
	case OpAdd:
		typ = subsysType(unix.NFT_MSG_NEWCHAIN)
		flags = netlink.Request | netlink.Acknowledge | netlink.Create
	case OpDelete:
		typ = subsysType(unix.NFT_MSG_DELCHAIN)
		flags = deleteFlags
	default:
		return netlink.Message{}, fmt.Errorf("unsupported chain operation %v", op)
	}
	return netlink.Message{
		Header: netlink.Header{
			Type:     typ,
			Flags:    flags,
			Sequence: seq,
		},
		Data: append(nfHeader(c.raw.family, 0), data...),
	}, nil
}
