// SPDX-License-Identifier: Unlicense OR MIT

package byteslice

import (
	"encoding/binary"
	"testing"
)

func TestSlice(t *testing.T) {
	if b := Slice([]float32(nil)); b != nil {
		t.Errorf("empty slice: got %v", b)
	}
	f := []float32{1, -2.5}
	b := Slice(f)
	if len(b) != 8 {
		t.Fatalf("got %d bytes, expected 8", len(b))
	}
	if got := binary.NativeEndian.Uint32(b[4:]); got != 0xc0200000 {
		t.Errorf("got bits %#x for -2.5", got)
	}
	idx := Slice([]uint16{7})
	if got := binary.NativeEndian.Uint16(idx); got != 7 {
		t.Errorf("got index %d, expected 7", got)
	}
}
