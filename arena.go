package nftwire

import (
	"fmt"
	"sync"
)

// Kind identifies the raw object types an Arena can allocate.
type Kind uint8

// Possible Kind values.
const (
	KindTable Kind = iota
	KindChain
	KindRule
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindChain:
		return "chain"
	case KindRule:
		return "rule"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Raw is the mutable attribute state behind one safe wrapper. Each wrapper
// exclusively owns exactly one Raw and releases it on Close. The concrete
// types are unexported; the serialization and parse layers are the only
// consumers.
type Raw interface {
	kind() Kind
}

// An Arena allocates and releases raw object state. Alloc either returns a
// usable object or ErrAllocation, never both. Implementations must tolerate
// Release being called exactly once per successful Alloc.
//
// HeapArena is the default. BoundedArena exists for memory-capped
// deployments and makes allocation-failure paths reachable in tests.
type Arena interface {
	Alloc(k Kind) (Raw, error)
	Release(r Raw)
}

// rawTable is the attribute state of a table.
type rawTable struct {
	family Family
	name   string
	flags  uint32
}

func (*rawTable) kind() Kind { return KindTable }

// rawChain is the attribute state of a chain. Hook, priority and policy are
// optional; nil means the attribute is absent from serialized messages
// (a regular, non-base chain).
type rawChain struct {
	family   Family
	table    string
	name     string
	hooknum  *uint32
	priority *int32
	ctype    ChainType
	policy   *ChainPolicy
}

func (*rawChain) kind() Kind { return KindChain }

// rawRule is the attribute state of a rule. Expression fragments are stored
// already marshaled, in append order. position is only serialized once
// explicitly set; the kernel appends at the end of the chain otherwise.
type rawRule struct {
	family      Family
	table       string
	chain       string
	handle      uint64
	position    uint64
	hasPosition bool
	userData    []byte
	exprs       [][]byte
}

func (*rawRule) kind() Kind { return KindRule }

func newRaw(k Kind) Raw {
	switch k {
	case KindTable:
		return &rawTable{}
	case KindChain:
		return &rawChain{}
	case KindRule:
		return &rawRule{}
	default:
		return nil
	}
}

// HeapArena allocates raw objects straight from the Go heap. Alloc never
// fails and Release is a no-op; the garbage collector reclaims the memory.
type HeapArena struct{}

// Alloc implements Arena.
func (HeapArena) Alloc(k Kind) (Raw, error) {
	r := newRaw(k)
	if r == nil {
		return nil, fmt.Errorf("%w: unknown kind %v", ErrAllocation, k)
	}
	return r, nil
}

// Release implements Arena.
func (HeapArena) Release(Raw) {}

// BoundedArena caps the number of live raw objects. Alloc fails with
// ErrAllocation once the budget is exhausted until objects are released.
type BoundedArena struct {
	mu   sync.Mutex
	live int
	max  int
}

// NewBoundedArena returns an arena allowing at most max live raw objects.
func NewBoundedArena(max int) *BoundedArena {
	return &BoundedArena{max: max}
}

// Alloc implements Arena.
func (a *BoundedArena) Alloc(k Kind) (Raw, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live >= a.max {
		return nil, fmt.Errorf("%w: arena budget of %d objects exhausted", ErrAllocation, a.max)
	}
	r := newRaw(k)
	if r == nil {
		return nil, fmt.Errorf("%w: unknown kind %v", ErrAllocation, k)
	}
	a.live++
	return r, nil
}

// Release implements Arena.
func (a *BoundedArena) Release(r Raw) {
	if r == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live > 0 {
		a.live--
	}
}

// Live reports the number of currently allocated raw objects.
func (a *BoundedArena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
