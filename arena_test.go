package nftwire

import (
	"errors"
	"testing"
)

func TestHeapArenaAllocatesAllKinds(t *testing.T) {
	a := HeapArena{}
	tests := []struct {
		kind Kind
		want Kind
	}{
		{KindTable, KindTable},
		{KindChain, KindChain},
		{KindRule, KindRule},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			raw, err := a.Alloc(tc.kind)
			if err != nil {
				t.Fatalf("Alloc(%v): %v", tc.kind, err)
			}
			if got := raw.kind(); got != tc.want {
				t.Errorf("kind = %v, want %v", got, tc.want)
			}
			a.Release(raw)
		})
	}
}

func TestHeapArenaUnknownKind(t *testing.T) {
	_, err := HeapArena{}.Alloc(Kind(99))
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("err = %v, want ErrAllocation", err)
	}
}

func TestBoundedArenaBudget(t *testing.T) {
	a := NewBoundedArena(2)

	r1, err := a.Alloc(KindRule)
	if err != nil {
		t.Fatalf("first Alloc: %v", err)
	}
	r2, err := a.Alloc(KindRule)
	if err != nil {
		t.Fatalf("second Alloc: %v", err)
	}
	if a.Live() != 2 {
		t.Fatalf("Live = %d, want 2", a.Live())
	}

	if _, err := a.Alloc(KindRule); !errors.Is(err, ErrAllocation) {
		t.Fatalf("exhausted Alloc err = %v, want ErrAllocation", err)
	}

	// Releasing frees budget for new allocations.
	a.Release(r1)
	if _, err := a.Alloc(KindChain); err != nil {
		t.Fatalf("Alloc after Release: %v", err)
	}

	a.Release(r2)
	a.Release(nil) // tolerated
}
