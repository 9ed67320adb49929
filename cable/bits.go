// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cable

import "fmt"

// Bits is a byte sequence plus a "bits in last byte" tail count in [1,8].
// Bit ordering within a byte is LSB-first: bit 0 of byte 0 is the first
// bit clocked out. Every Cable method and every statemachine/chain
// operation exchanges data through this type.
type Bits struct {
	Data     []byte
	TailBits int
}

// NewBits validates data and tailBits and returns the Bits they describe.
// tailBits must be in [1,8]; data must hold at least one byte.
func NewBits(data []byte, tailBits int) (Bits, error) {
	if len(data) == 0 {
		return Bits{}, fmt.Errorf("cable: empty data buffer")
	}
	if tailBits < 1 || tailBits > 8 {
		return Bits{}, fmt.Errorf("cable: bits_in_last_byte %d outside [1,8]", tailBits)
	}
	return Bits{Data: data, TailBits: tailBits}, nil
}

// MustBits is NewBits but panics on invalid arguments; it exists for
// call sites (tests, examples) constructing a Bits from a literal.
func MustBits(data []byte, tailBits int) Bits {
	b, err := NewBits(data, tailBits)
	if err != nil {
		panic(err)
	}
	return b
}

// Len returns the total number of valid bits.
func (b Bits) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return (len(b.Data)-1)*8 + b.TailBits
}

// Bit returns bit i (0-indexed, LSB-first) of the buffer. i must be in
// [0, b.Len()).
func (b Bits) Bit(i int) int {
	byteIdx := i / 8
	bitIdx := uint(i % 8)
	return int((b.Data[byteIdx] >> bitIdx) & 1)
}

// ZeroBits returns an all-zero Bits of the given length, with the
// trailing byte's unused high bits left at zero.
func ZeroBits(bits int) Bits {
	n := (bits + 7) / 8
	tail := bits % 8
	if tail == 0 {
		tail = 8
	}
	return Bits{Data: make([]byte, n), TailBits: tail}
}

// PackBits builds a Bits from a slice of 0/1 values, LSB-first, analogous
// to how the BFS path and the bitbang back-ends build a bit stream one
// cycle at a time.
func PackBits(bits []int) Bits {
	if len(bits) == 0 {
		return Bits{}
	}
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	tail := len(bits) % 8
	if tail == 0 {
		tail = 8
	}
	return Bits{Data: out, TailBits: tail}
}

// Slice returns the length-bit sub-range of b starting at bit start
// (LSB-first), repacked as its own Bits. It is used to strip leading
// BYPASS padding bits off a combined read_write_data response.
func (b Bits) Slice(start, length int) Bits {
	bits := make([]int, length)
	for i := 0; i < length; i++ {
		bits[i] = b.Bit(start + i)
	}
	return PackBits(bits)
}

// Bools returns the buffer's valid bits as a []int of 0/1, LSB-first.
// Primarily used by tests asserting against wire-level expectations.
func (b Bits) Bools() []int {
	n := b.Len()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = b.Bit(i)
	}
	return out
}

// OnesBits returns a Bits of n one-bits.
func OnesBits(n int) Bits {
	bits := make([]int, n)
	for i := range bits {
		bits[i] = 1
	}
	return PackBits(bits)
}

// PadOnesBefore prepends k one-bits to the front of data's bit stream
// (LSB-first, so the returned Bits' lowest-order k bits are 1 and data's
// own bits follow starting at bit k). This is the BYPASS padding
// operation used to insert other devices' filler bits ahead of a
// device's own IR/DR payload in a scan chain.
//
// The original taps implementation builds the equivalent bit stream by
// shifting whole bytes left and merging carries between them; that
// approach silently drops the final carry when the padding pushes the
// payload's last byte past its own byte boundary (observable whenever
// the combined bit count crosses an 8-bit boundary the input buffer
// wasn't sized for). Building the result bit-by-bit avoids that failure
// mode while producing the identical sequence whenever both would agree.
func PadOnesBefore(data Bits, k int) Bits {
	n := data.Len()
	bits := make([]int, k+n)
	for i := 0; i < k; i++ {
		bits[i] = 1
	}
	for i := 0; i < n; i++ {
		bits[k+i] = data.Bit(i)
	}
	return PackBits(bits)
}
