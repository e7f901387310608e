package nftwire

import (
	"fmt"
	"strings"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/nftwire/expr"
)

// ruleStrCap bounds the output of Rule.String. Renderings longer than this
// are truncated; the cap matches libnftnl's conventional 4 KiB snprintf
// buffer.
const ruleStrCap = 4096

// A Rule is one match-and-act unit inside a Chain: an ordered, append-only
// sequence of expressions plus kernel bookkeeping (handle, position).
//
// The identifying fields (family, table name, chain name) are snapshotted
// from the chain at construction time and do not follow later chain
// renames. The handle is kernel-authoritative: it stays zero until the
// kernel assigns one, observed via ListRules.
type Rule struct {
	chain  *Chain
	raw    *rawRule
	closed bool
}

// NewRule allocates a rule in the given chain. The chain's family, table
// name and chain name are copied into the rule before any other field is
// touched; an allocation failure short-circuits with nothing set.
func NewRule(chain *Chain) (*Rule, error) {
	if chain.closed {
		return nil, fmt.Errorf("creating rule: %w", ErrClosed)
	}
	raw, err := chain.table.arena.Alloc(KindRule)
	if err != nil {
		return nil, fmt.Errorf("allocating rule: %w", err)
	}
	rr := raw.(*rawRule)
	rr.family = chain.table.Family()
	rr.table = chain.table.Name()
	rr.chain = chain.Name()
	return &Rule{chain: chain, raw: rr}, nil
}

// Chain returns the owning chain.
func (r *Rule) Chain() *Chain { return r.chain }

// Position returns the rule's ordering key within its chain. Zero with no
// prior SetPosition means "append at the end".
func (r *Rule) Position() uint64 { return r.raw.position }

// SetPosition sets the ordering key. No validation happens here; duplicate
// or out-of-range positions are the kernel's concern.
func (r *Rule) SetPosition(pos uint64) {
	r.raw.position = pos
	r.raw.hasPosition = true
}

// Handle returns the kernel-assigned identifier, zero if unconfirmed.
func (r *Rule) Handle() uint64 { return r.raw.handle }

// SetHandle records a handle. Setting one does not make it
// kernel-confirmed; it is caller-asserted state, typically copied from a
// listed rule before a delete.
func (r *Rule) SetHandle(handle uint64) { r.raw.handle = handle }

// AddExpr marshals e and appends its fragment to the rule's expression
// list. There is no removal: expressions are evaluated by the kernel in
// append order, ANDed together, and the first non-match stops evaluation of
// this rule.
func (r *Rule) AddExpr(e expr.Any) error {
	frag, err := e.Marshal(byte(r.raw.family))
	if err != nil {
		return fmt.Errorf("marshaling %q expression: %w", e.Name(), err)
	}
	r.raw.exprs = append(r.raw.exprs, frag)
	return nil
}

// ExprCount reports how many expressions have been appended.
func (r *Rule) ExprCount() int { return len(r.raw.exprs) }

// Exprs returns the marshaled expression fragments in append order. The
// fragments are shared with the rule; callers must not mutate them.
func (r *Rule) Exprs() [][]byte { return r.raw.exprs }

// DecodeExprs decodes the rule's expression fragments into typed
// expressions, falling back to expr.Raw for unknown kinds.
func (r *Rule) DecodeExprs() ([]expr.Any, error) {
	out := make([]expr.Any, 0, len(r.raw.exprs))
	for _, frag := range r.raw.exprs {
		e, err := expr.ParseOne(byte(r.raw.family), frag)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UserData returns the opaque byte string attached to the rule. ok is false
// when none was ever set; that is a valid state, not an error. An empty
// value that was set explicitly reads back as present.
func (r *Rule) UserData() (data []byte, ok bool) {
	if r.raw.userData == nil {
		return nil, false
	}
	return append(make([]byte, 0, len(r.raw.userData)), r.raw.userData...), true
}

// SetUserData attaches an opaque byte string, stored and serialized
// verbatim. The wire attribute is length-delimited, so embedded NUL bytes
// round-trip intact. Passing nil clears the value; an empty non-nil slice
// stays distinguishable from never-set.
func (r *Rule) SetUserData(data []byte) {
	if data == nil {
		r.raw.userData = nil
		return
	}
	r.raw.userData = append(make([]byte, 0, len(data)), data...)
}

// Equal reports rule identity: same chain and the same nonzero
// kernel-assigned handle. Two rules that both lack a handle are never equal
// even if structurally identical.
func (r *Rule) Equal(other *Rule) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return r.chain == other.chain && r.raw.handle != 0 && r.raw.handle == other.raw.handle
}

// String renders a human-readable description of the rule for logging. The
// output is truncated at 4096 bytes and is not a machine-parsed format.
func (r *Rule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", r.raw.family, r.raw.table, r.raw.chain)
	if r.raw.handle != 0 {
		fmt.Fprintf(&sb, " handle %d", r.raw.handle)
	}
	if r.raw.hasPosition {
		fmt.Fprintf(&sb, " position %d", r.raw.position)
	}
	fmt.Fprintf(&sb, " exprs %d", len(r.raw.exprs))
	if r.raw.userData != nil {
		fmt.Fprintf(&sb, " userdata %q", r.raw.userData)
	}
	s := sb.String()
	if len(s) > ruleStrCap {
		s = s[:ruleStrCap]
	}
	return s
}

// Close releases the rule's raw state back to the arena. The owning chain
// is unaffected.
func (r *Rule) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.chain.table.arena.Release(r.raw)
}

// payload serializes the rule's current attribute state. Identifying
// fields first, then handle and position when set, the expression list,
// and userdata last.
func (rr *rawRule) payload() ([]byte, error) {
	attrs := []netlink.Attribute{
		{Type: unix.NFTA_RULE_TABLE, Data: nulString(rr.table)},
		{Type: unix.NFTA_RULE_CHAIN, Data: nulString(rr.chain)},
	}
	if rr.handle != 0 {
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NFTA_RULE_HANDLE,
			Data: be64(rr.handle),
		})
	}
	if rr.hasPosition {
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NFTA_RULE_POSITION,
			Data: be64(rr.position),
		})
	}
	if len(rr.exprs) > 0 {
		elems := make([]netlink.Attribute, len(rr.exprs))
		for i, frag := range rr.exprs {
			elems[i] = netlink.Attribute{
				Type: unix.NLA_F_NESTED | unix.NFTA_LIST_ELEM,
				Data: frag,
			}
		}
		list, err := netlink.MarshalAttributes(elems)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NLA_F_NESTED | unix.NFTA_RULE_EXPRESSIONS,
			Data: list,
		})
	}
	if rr.userData != nil {
		attrs = append(attrs, netlink.Attribute{
			Type: unix.NFTA_RULE_USERDATA,
			Data: rr.userData,
		})
	}
	return netlink.MarshalAttributes(attrs)
}

// message implements Object. Add maps to NFT_MSG_NEWRULE with
// CREATE|APPEND|EXCL|ACK, Delete to NFT_MSG_DELRULE with ACK only, per the
// nf_tables ABI.
func (r *Rule) message(op Op, seq uint32) (netlink.Message, error) {
	data, err := r.raw.payload()
	if err != nil {
		return netlink.Message{}, err
	}
	var typ netlink.HeaderType
	var flags netlink.HeaderFlags
	switch op {
	case OpAdd:
		typ = subsysType(unix.NFT_MSG_NEWRULE)
		flags = addFlags
	case OpDelete:
		typ = subsysType(unix.NFT_MSG_DELRULE)
		flags = deleteFlags
	default:
		return netlink.Message{}, fmt.Errorf("unsupported rule operation %v", op)
	}
	return netlink.Message{
		Header: netlink.Header{
			Type:     typ,
			Flags:    flags,
			Sequence: seq,
		},
		Data: append(nfHeader(r.raw.family, 0), data...),
	}, nil
}
