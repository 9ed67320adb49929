// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cable

import (
	"reflect"
	"testing"
)

func TestNewBitsValidatesTailBits(t *testing.T) {
	if _, err := NewBits([]byte{0x01}, 0); err == nil {
		t.Fatal("expected an error for tailBits=0")
	}
	if _, err := NewBits([]byte{0x01}, 9); err == nil {
		t.Fatal("expected an error for tailBits=9")
	}
	if _, err := NewBits(nil, 8); err == nil {
		t.Fatal("expected an error for an empty buffer")
	}
	b, err := NewBits([]byte{0xFF}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", b.Len())
	}
}

func TestLenAccountsForTailBits(t *testing.T) {
	b := MustBits([]byte{0xFF, 0x03}, 2)
	if got, want := b.Len(), 10; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestPackBitsRoundTripsBools(t *testing.T) {
	bits := []int{1, 0, 1, 1, 0, 0, 0, 1, 1}
	b := PackBits(bits)
	if got := b.Bools(); !reflect.DeepEqual(got, bits) {
		t.Fatalf("Bools() = %v, want %v", got, bits)
	}
}

func TestPadOnesBeforePrependsOnes(t *testing.T) {
	payload := MustBits([]byte{0x0E}, 4) // 0,1,1,1
	got := PadOnesBefore(payload, 5)
	want := []int{1, 1, 1, 1, 1, 0, 1, 1, 1}
	if got := got.Bools(); !reflect.DeepEqual(got, want) {
		t.Fatalf("PadOnesBefore = %v, want %v", got, want)
	}
}

func TestSliceStripsLeadingPad(t *testing.T) {
	combined := PackBits([]int{1, 1, 0, 1, 0, 1})
	got := combined.Slice(2, 4)
	want := []int{0, 1, 0, 1}
	if got := got.Bools(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Slice = %v, want %v", got, want)
	}
}

func TestOnesBits(t *testing.T) {
	got := OnesBits(5).Bools()
	want := []int{1, 1, 1, 1, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("OnesBits(5) = %v, want %v", got, want)
	}
}

func TestLookupRecognizesKnownNames(t *testing.T) {
	for _, name := range []string{"jtagkey", "ef3", "usbblaster", "jlink", "gpio"} {
		if !Lookup(name) {
			t.Errorf("Lookup(%q) = false, want true", name)
		}
	}
	if Lookup("not-a-real-cable") {
		t.Fatal("Lookup reported an unknown name as known")
	}
}

func TestAssertfPanicsWithMisuse(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic")
		}
		m, ok := r.(*Misuse)
		if !ok {
			t.Fatalf("panic value = %T, want *Misuse", r)
		}
		if m.Component != "cable" {
			t.Fatalf("Component = %q, want cable", m.Component)
		}
	}()
	Assertf(false, "cable", "boom %d", 42)
}
