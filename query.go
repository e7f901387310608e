package nftwire

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/nftwire/internal/logging"
)

// The list helpers issue one GET dump request and decode every response
// message into a typed wrapper. Failure semantics are all-or-nothing: a
// single undecodable response aborts the whole operation and no partial
// result is returned alongside the error.

// ListRules returns all rules in the given chain, in kernel order. The
// request carries a filter payload naming the chain's family, table and
// chain so the kernel only returns matching rules. Handles on the returned
// rules are kernel-assigned.
func ListRules(t Transport, chain *Chain) ([]*Rule, error) {
	arena := chain.table.arena

	// The filter is a throwaway rule object carrying only the identifying
	// fields; its serialized payload narrows the dump kernel-side.
	filter, err := arena.Alloc(KindRule)
	if err != nil {
		return nil, fmt.Errorf("allocating rule filter: %w", err)
	}
	fr := filter.(*rawRule)
	fr.family = chain.table.Family()
	fr.table = chain.table.Name()
	fr.chain = chain.Name()
	data, err := fr.payload()
	arena.Release(filter)
	if err != nil {
		return nil, err
	}

	msgs, err := dump(t, unix.NFT_MSG_GETRULE, chain.table.Family(), data)
	if err != nil {
		return nil, err
	}

	var rules []*Rule
	fail := func(err error) ([]*Rule, error) {
		for _, r := range rules {
			r.Close()
		}
		return nil, err
	}
	for _, msg := range msgs {
		raw, err := arena.Alloc(KindRule)
		if err != nil {
			return fail(fmt.Errorf("allocating rule from response: %w", err))
		}
		rr := raw.(*rawRule)
		if err := parseRule(msg, rr); err != nil {
			arena.Release(raw)
			perr := &ParseError{Type: msg.Header.Type, Err: err}
			logging.WithComponent("query").Error("failed to parse rule message",
				"type", fmt.Sprintf("%#04x", uint16(msg.Header.Type)), "error", err)
			return fail(perr)
		}
		rules = append(rules, &Rule{chain: chain, raw: rr})
	}
	return rules, nil
}

// ListChains returns all chains in the given table.
func ListChains(t Transport, table *Table) ([]*Chain, error) {
	filter, err := netlink.MarshalAttributes([]netlink.Attribute{
		{Type: unix.NFTA_CHAIN_TABLE, Data: nulString(table.Name())},
	})
	if err != nil {
		return nil, err
	}
	msgs, err := dump(t, unix.NFT_MSG_GETCHAIN, table.Family(), filter)
	if err != nil {
		return nil, err
	}

	var chains []*Chain
	fail := func(err error) ([]*Chain, error) {
		for _, c := range chains {
			c.Close()
		}
		return nil, err
	}
	for _, msg := range msgs {
		raw, err := table.arena.Alloc(KindChain)
		if err != nil {
			return fail(fmt.Errorf("allocating chain from response: %w", err))
		}
		rc := raw.(*rawChain)
		if err := parseChain(msg, rc); err != nil {
			table.arena.Release(raw)
			perr := &ParseError{Type: msg.Header.Type, Err: err}
			logging.WithComponent("query").Error("failed to parse chain message",
				"type", fmt.Sprintf("%#04x", uint16(msg.Header.Type)), "error", err)
			return fail(perr)
		}
		// The dump is already filtered server-side, but a stray chain from
		// another table must not be attributed to this one.
		if rc.table != table.Name() {
			table.arena.Release(raw)
			continue
		}
		chains = append(chains, &Chain{table: table, raw: rc})
	}
	return chains, nil
}

// ListTables returns all tables of the given family; FamilyUnspec lists
// every family.
func ListTables(t Transport, family Family, opts ...TableOption) ([]*Table, error) {
	msgs, err := dump(t, unix.NFT_MSG_GETTABLE, family, nil)
	if err != nil {
		return nil, err
	}

	var tables []*Table
	fail := func(err error) ([]*Table, error) {
		for _, tbl := range tables {
			tbl.Close()
		}
		return nil, err
	}
	for _, msg := range msgs {
		tbl := &Table{arena: HeapArena{}}
		for _, opt := range opts {
			opt(tbl)
		}
		raw, err := tbl.arena.Alloc(KindTable)
		if err != nil {
			return fail(fmt.Errorf("allocating table from response: %w", err))
		}
		rt := raw.(*rawTable)
		if err := parseTable(msg, rt); err != nil {
			tbl.arena.Release(raw)
			perr := &ParseError{Type: msg.Header.Type, Err: err}
			logging.WithComponent("query").Error("failed to parse table message",
				"type", fmt.Sprintf("%#04x", uint16(msg.Header.Type)), "error", err)
			return fail(perr)
		}
		tbl.raw = rt
		tables = append(tables, tbl)
	}
	return tables, nil
}

// dump sends one GET request with the Dump flag and an optional filter
// payload, then returns the response stream.
func dump(t Transport, msg uint16, family Family, filter []byte) ([]netlink.Message, error) {
	req := netlink.Message{
		Header: netlink.Header{
			Type:     subsysType(msg),
			Flags:    netlink.Request | netlink.Dump,
			Sequence: t.Seq(),
		},
		Data: append(nfHeader(family, 0), filter...),
	}
	if err := t.Send([]netlink.Message{req}); err != nil {
		return nil, fmt.Errorf("sending dump request: %w", err)
	}
	msgs, err := t.Receive()
	if err != nil {
		return nil, fmt.Errorf("receiving dump response: %w", err)
	}
	return msgs, nil
}

// nfgenmsgLen is the fixed prefix before the attribute payload of every
// nftables message.
const nfgenmsgLen = 4

func payloadDecoder(msg netlink.Message) (*netlink.AttributeDecoder, Family, error) {
	if len(msg.Data) < nfgenmsgLen {
		return nil, 0, fmt.Errorf("message truncated: %d bytes, want at least %d", len(msg.Data), nfgenmsgLen)
	}
	ad, err := netlink.NewAttributeDecoder(msg.Data[nfgenmsgLen:])
	if err != nil {
		return nil, 0, err
	}
	ad.ByteOrder = binary.BigEndian
	return ad, Family(msg.Data[0]), nil
}

func parseRule(msg netlink.Message, rr *rawRule) error {
	if want := subsysType(unix.NFT_MSG_NEWRULE); msg.Header.Type != want {
		return fmt.Errorf("unexpected header type %#04x, want %#04x", uint16(msg.Header.Type), uint16(want))
	}
	ad, fam, err := payloadDecoder(msg)
	if err != nil {
		return err
	}
	rr.family = fam
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_RULE_TABLE:
			rr.table = ad.String()
		case unix.NFTA_RULE_CHAIN:
			rr.chain = ad.String()
		case unix.NFTA_RULE_HANDLE:
			rr.handle = ad.Uint64()
		case unix.NFTA_RULE_POSITION:
			rr.position = ad.Uint64()
			rr.hasPosition = true
		case unix.NFTA_RULE_USERDATA:
			rr.userData = ad.Bytes()
		case unix.NFTA_RULE_EXPRESSIONS:
			ad.Do(func(b []byte) error {
				frags, err := splitListElems(b)
				if err != nil {
					return err
				}
				rr.exprs = frags
				return nil
			})
		}
	}
	return ad.Err()
}

// splitListElems cuts a NFTA_RULE_EXPRESSIONS payload into its
// NFTA_LIST_ELEM fragments, preserving kernel order.
func splitListElems(b []byte) ([][]byte, error) {
	ad, err := netlink.NewAttributeDecoder(b)
	if err != nil {
		return nil, err
	}
	ad.ByteOrder = binary.BigEndian
	var frags [][]byte
	for ad.Next() {
		if ad.Type() != unix.NFTA_LIST_ELEM {
			continue
		}
		frags = append(frags, ad.Bytes())
	}
	if err := ad.Err(); err != nil {
		return nil, err
	}
	return frags, nil
}

func parseChain(msg netlink.Message, rc *rawChain) error {
	if want := subsysType(unix.NFT_MSG_NEWCHAIN); msg.Header.Type != want {
		return fmt.Errorf("unexpected header type %#04x, want %#04x", uint16(msg.Header.Type), uint16(want))
	}
	ad, fam, err := payloadDecoder(msg)
	if err != nil {
		return err
	}
	rc.family = fam
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_CHAIN_TABLE:
			rc.table = ad.String()
		case unix.NFTA_CHAIN_NAME:
			rc.name = ad.String()
		case unix.NFTA_CHAIN_TYPE:
			rc.ctype = ChainType(ad.String())
		case unix.NFTA_CHAIN_POLICY:
			p := ChainPolicy(ad.Uint32())
			rc.policy = &p
		case unix.NFTA_CHAIN_HOOK:
			ad.Do(func(b []byte) error {
				nested, err := netlink.NewAttributeDecoder(b)
				if err != nil {
					return err
				}
				nested.ByteOrder = binary.BigEndian
				for nested.Next() {
					switch nested.Type() {
					case unix.NFTA_HOOK_HOOKNUM:
						h := nested.Uint32()
						rc.hooknum = &h
					case unix.NFTA_HOOK_PRIORITY:
						p := int32(nested.Uint32())
						rc.priority = &p
					}
				}
				return nested.Err()
			})
		}
	}
	return ad.Err()
}

func parseTable(msg netlink.Message, rt *rawTable) error {
	if want := subsysType(unix.NFT_MSG_NEWTABLE); msg.Header.Type != want {
		return fmt.Errorf("unexpected header type %#04x, want %#04x", uint16(msg.Header.Type), uint16(want))
	}
	ad, fam, err := payloadDecoder(msg)
	if err != nil {
		return err
	}
	rt.family = fam
	for ad.Next() {
		switch ad.Type() {
		case unix.NFTA_TABLE_NAME:
			rt.name = ad.String()
		case unix.NFTA_TABLE_FLAGS:
			rt.flags = ad.Uint32()
		}
	}
	return ad.Err()
}
