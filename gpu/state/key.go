// SPDX-License-Identifier: Unlicense OR MIT

package state

import (
	"fmt"

	"geoviz.org/render/gpu/driver"
)

// Key identifies one piece of tracked device state.
type Key uint16

const (
	// MaxTextureUnits is the number of tracked texture units.
	MaxTextureUnits = 8
	// MaxVertexAttribs is the number of tracked vertex attributes.
	MaxVertexAttribs = 8
)

const (
	KeyFramebuffer Key = iota
	KeyProgram
	KeyVertexArray
	KeyViewport
	KeyScissor
	KeyBlendFunc
	KeyDepthFunc
	KeyDepthMask
	KeyStencilFunc
	KeyStencilOp
	KeyColorMask
	KeyClearColor
	KeyClearDepth
	KeyColor
	KeyPointSize
	KeyLineWidth
	KeyCullMode
	KeyFrontFace
	keyBuffer0
)

const (
	keyEnable0  = keyBuffer0 + Key(driver.NumBufferTargets)
	keyMatrix0  = keyEnable0 + Key(driver.NumCapabilities)
	keyTexture0 = keyMatrix0 + Key(driver.NumMatrixModes)
	keyAttrib0  = keyTexture0 + MaxTextureUnits

	// NumKeys is the number of keys in a Vector.
	NumKeys = keyAttrib0 + MaxVertexAttribs
)

var keyNames = [...]string{
	KeyFramebuffer: "framebuffer",
	KeyProgram:     "program",
	KeyVertexArray: "vertex-array",
	KeyViewport:    "viewport",
	KeyScissor:     "scissor",
	KeyBlendFunc:   "blend-func",
	KeyDepthFunc:   "depth-func",
	KeyDepthMask:   "depth-mask",
	KeyStencilFunc: "stencil-func",
	KeyStencilOp:   "stencil-op",
	KeyColorMask:   "color-mask",
	KeyClearColor:  "clear-color",
	KeyClearDepth:  "clear-depth",
	KeyColor:       "color",
	KeyPointSize:   "point-size",
	KeyLineWidth:   "line-width",
	KeyCullMode:    "cull-mode",
	KeyFrontFace:   "front-face",
}

// BufferKey returns the key of the buffer bound to target.
func BufferKey(t driver.BufferTarget) Key {
	if t >= driver.NumBufferTargets {
		panicRange("BufferKey", "buffer target", int(t), int(driver.NumBufferTargets))
	}
	return keyBuffer0 + Key(t)
}

// EnableKey returns the key of the toggle for c.
func EnableKey(c driver.Capability) Key {
	if c >= driver.NumCapabilities {
		panicRange("EnableKey", "capability", int(c), int(driver.NumCapabilities))
	}
	return keyEnable0 + Key(c)
}

// MatrixKey returns the key of the matrix for mode.
func MatrixKey(m driver.MatrixMode) Key {
	if m >= driver.NumMatrixModes {
		panicRange("MatrixKey", "matrix mode", int(m), int(driver.NumMatrixModes))
	}
	return keyMatrix0 + Key(m)
}

// TextureKey returns the key of the texture bound to unit.
func TextureKey(unit int) Key {
	if unit < 0 || unit >= MaxTextureUnits {
		panicRange("TextureKey", "texture unit", unit, MaxTextureUnits)
	}
	return keyTexture0 + Key(unit)
}

// AttribKey returns the key of the source of vertex attribute index.
func AttribKey(index int) Key {
	if index < 0 || index >= MaxVertexAttribs {
		panicRange("AttribKey", "vertex attribute", index, MaxVertexAttribs)
	}
	return keyAttrib0 + Key(index)
}

func (k Key) String() string {
	switch {
	case k < keyBuffer0:
		return keyNames[k]
	case k < keyEnable0:
		return "buffer:" + driver.BufferTarget(k-keyBuffer0).String()
	case k < keyMatrix0:
		return "enable:" + driver.Capability(k-keyEnable0).String()
	case k < keyTexture0:
		return "matrix:" + driver.MatrixMode(k-keyMatrix0).String()
	case k < keyAttrib0:
		return fmt.Sprintf("texture:%d", k-keyTexture0)
	case k < NumKeys:
		return fmt.Sprintf("attrib:%d", k-keyAttrib0)
	default:
		return fmt.Sprintf("key(%d)", uint16(k))
	}
}
