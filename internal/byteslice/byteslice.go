// SPDX-License-Identifier: Unlicense OR MIT

// Package byteslice provides byte slice views of other slice types.
package byteslice

import (
	"unsafe"
)

// Slice returns a byte slice view of s, in native byte order.
func Slice[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
