// SPDX-License-Identifier: Unlicense OR MIT

// Package resource implements reference counted handles to device
// objects and the manager that allocates them.
package resource

import (
	"fmt"
	"image"

	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
)

// Kind identifies the type of device object behind a Handle.
type Kind uint8

const (
	KindTexture Kind = iota
	KindBuffer
	KindVertexArray
	KindProgram
	KindFramebuffer
)

// Handle is a reference counted identity for a device object. Two
// handles are the same resource if and only if they are the same
// pointer. A Handle is created holding one reference; the device
// object is released when the last reference is released.
type Handle struct {
	id    uint64
	kind  Kind
	label string
	obj   driver.Object
	refs  int
	// onDead is run once the object has been released.
	onDead []func(*Handle)
}

func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindBuffer:
		return "buffer"
	case KindVertexArray:
		return "vertex-array"
	case KindProgram:
		return "program"
	case KindFramebuffer:
		return "framebuffer"
	default:
		return "kind(?)"
	}
}

// ID returns a number unique to h within its Manager.
func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) Kind() Kind { return h.kind }

// Label returns the debugging label given at creation.
func (h *Handle) Label() string { return h.label }

// Refs returns the number of live references.
func (h *Handle) Refs() int { return h.refs }

// Alive reports whether the device object still exists.
func (h *Handle) Alive() bool { return h.refs > 0 }

// Ref adds a reference and returns h.
func (h *Handle) Ref() *Handle {
	if h.refs <= 0 {
		precond.Panicf("Ref", "%s already released", h)
	}
	h.refs++
	return h
}

// Release drops a reference.
func (h *Handle) Release() {
	if h.refs <= 0 {
		precond.Panicf("Release", "%s already released", h)
	}
	h.refs--
	if h.refs > 0 {
		return
	}
	h.obj.Release()
	for _, f := range h.onDead {
		f(h)
	}
	h.onDead = nil
}

// Object returns the device object. It panics if h has been released.
func (h *Handle) Object() driver.Object {
	if h.refs <= 0 {
		precond.Panicf("Object", "use of released %s", h)
	}
	return h.obj
}

// Texture returns the device texture behind a texture handle.
func (h *Handle) Texture() driver.Texture {
	h.mustKind(KindTexture)
	return h.Object().(driver.Texture)
}

// Buffer returns the device buffer behind a buffer handle.
func (h *Handle) Buffer() driver.Buffer {
	h.mustKind(KindBuffer)
	return h.Object().(driver.Buffer)
}

// Size returns the size of a texture handle.
func (h *Handle) Size() image.Point {
	return h.Texture().Size()
}

func (h *Handle) mustKind(k Kind) {
	if h.kind != k {
		precond.Panicf("Object", "%s is not a %s", h, k)
	}
}

// OnRelease registers f to run when the device object is released.
func (h *Handle) OnRelease(f func(*Handle)) {
	h.onDead = append(h.onDead, f)
}

func (h *Handle) String() string {
	if h.label != "" {
		return fmt.Sprintf("%s#%d(%s)", h.kind, h.id, h.label)
	}
	return fmt.Sprintf("%s#%d", h.kind, h.id)
}
