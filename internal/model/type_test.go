package model

import (
	"errors"
	"testing"
)

func TestTypeIndexRoundTrip(t *testing.T) {
	seen := make(map[int]bool)
	for _, typ := range AllTypes() {
		idx := typ.Index()
		if seen[idx] {
			t.Fatalf("duplicate index %d", idx)
		}
		seen[idx] = true

		back, err := TypeFromIndex(idx)
		if err != nil {
			t.Fatalf("TypeFromIndex(%d) returned error: %v", idx, err)
		}
		if back != typ {
			t.Fatalf("expected %v, got %v", typ, back)
		}
	}
	if len(seen) != NumTypes {
		t.Fatalf("expected %d indices, got %d", NumTypes, len(seen))
	}
}

func TestTypeFromIndex_OutOfRange(t *testing.T) {
	for _, idx := range []int{-1, NumTypes, 100} {
		if _, err := TypeFromIndex(idx); !errors.Is(err, ErrUnknownModelType) {
			t.Fatalf("expected ErrUnknownModelType for %d, got %v", idx, err)
		}
	}
}

func TestTypeString(t *testing.T) {
	cases := map[Type]string{
		{Side: SideLong, Action: ActionOpening}:  "opening_long",
		{Side: SideLong, Action: ActionClosing}:  "closing_long",
		{Side: SideShort, Action: ActionOpening}: "opening_short",
		{Side: SideShort, Action: ActionClosing}: "closing_short",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if got := (Type{Side: SideShort, Action: ActionOpening}).Closing(); got.Action != ActionClosing || got.Side != SideShort {
		t.Fatalf("unexpected closing type %v", got)
	}
}
