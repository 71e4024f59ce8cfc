// SPDX-License-Identifier: Unlicense OR MIT

package resource

import (
	"errors"
	"fmt"
	"log/slog"

	"gioui.org/shader"
	"github.com/gogpu/gputypes"

	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
)

// ErrTooLarge is returned when an allocation exceeds the device limits.
var ErrTooLarge = errors.New("resource: size exceeds device limits")

// Manager allocates Handles on a device. It also owns the off-screen
// framebuffers created for render-to-texture, one per texture level,
// which live as long as their texture.
type Manager struct {
	dev    driver.Device
	caps   driver.Caps
	logger *slog.Logger
	nextID uint64
	live   int

	fbos    map[fbKey]*Handle
	watched map[*Handle]struct{}

	probed    bool
	offscreen bool
}

type fbKey struct {
	tex   *Handle
	level int
}

// NewManager creates a manager for dev. The logger may be nil.
func NewManager(dev driver.Device, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		dev:     dev,
		caps:    dev.Caps(),
		logger:  logger,
		fbos:    make(map[fbKey]*Handle),
		watched: make(map[*Handle]struct{}),
	}
}

// Caps returns the device capabilities, queried once.
func (m *Manager) Caps() driver.Caps {
	return m.caps
}

// Live returns the number of handles whose device object exists.
func (m *Manager) Live() int {
	return m.live
}

// OffscreenSupported reports whether native off-screen targets work.
// The answer is computed on the first call by advertised features and
// by creating a complete 1x1 framebuffer, and never changes after.
func (m *Manager) OffscreenSupported() bool {
	if m.probed {
		return m.offscreen
	}
	m.probed = true
	if !m.caps.Features.Has(driver.FeatureOffscreenTargets) {
		m.logger.Debug("resource: device lacks off-screen targets")
		return false
	}
	tex, err := m.dev.NewTexture(gputypes.TextureFormatRGBA8Unorm, 1, 1, 1)
	if err != nil {
		m.logger.Warn("resource: off-screen probe texture failed", "err", err)
		return false
	}
	defer tex.Release()
	fb, err := m.dev.NewFramebuffer(tex, 0)
	if err != nil {
		m.logger.Warn("resource: off-screen probe framebuffer failed", "err", err)
		return false
	}
	fb.Release()
	m.offscreen = true
	return true
}

// NewTexture allocates a texture with the given number of mipmap
// levels.
func (m *Manager) NewTexture(label string, format gputypes.TextureFormat, width, height, levels int) (*Handle, error) {
	if width <= 0 || height <= 0 || levels <= 0 {
		precond.Panicf("NewTexture", "invalid texture %dx%d, %d levels", width, height, levels)
	}
	if max := m.caps.MaxTextureSize; max > 0 && (width > max || height > max) {
		return nil, fmt.Errorf("%w: %dx%d texture, maximum %d", ErrTooLarge, width, height, max)
	}
	t, err := m.dev.NewTexture(format, width, height, levels)
	if err != nil {
		return nil, fmt.Errorf("resource: texture %q: %w", label, err)
	}
	return m.wrap(KindTexture, label, t), nil
}

// NewBuffer allocates a buffer initialized with data.
func (m *Manager) NewBuffer(label string, target driver.BufferTarget, data []byte) (*Handle, error) {
	b, err := m.dev.NewBuffer(target, data)
	if err != nil {
		return nil, fmt.Errorf("resource: buffer %q: %w", label, err)
	}
	return m.wrap(KindBuffer, label, b), nil
}

// NewVertexArray allocates a vertex array object.
func (m *Manager) NewVertexArray(label string) (*Handle, error) {
	a, err := m.dev.NewVertexArray()
	if err != nil {
		return nil, fmt.Errorf("resource: vertex array %q: %w", label, err)
	}
	return m.wrap(KindVertexArray, label, a), nil
}

// NewProgram links a program from vertex and fragment sources. The
// handle is labelled with the vertex shader name.
func (m *Manager) NewProgram(vertex, fragment shader.Sources) (*Handle, error) {
	p, err := m.dev.NewProgram(vertex, fragment)
	if err != nil {
		return nil, fmt.Errorf("resource: program %s/%s: %w", vertex.Name, fragment.Name, err)
	}
	return m.wrap(KindProgram, vertex.Name, p), nil
}

// Framebuffer returns the cached off-screen target for the level of a
// texture, creating it on first use. The cache owns the returned
// handle. An incomplete configuration is reported as an error wrapping
// driver.ErrIncompleteFramebuffer and is not cached.
func (m *Manager) Framebuffer(tex *Handle, level int) (*Handle, error) {
	if level < 0 || level >= tex.Texture().Levels() {
		precond.Panicf("Framebuffer", "level %d out of range for %s", level, tex)
	}
	key := fbKey{tex: tex, level: level}
	if fb, exists := m.fbos[key]; exists {
		return fb, nil
	}
	obj, err := m.dev.NewFramebuffer(tex.Texture(), level)
	if err != nil {
		return nil, fmt.Errorf("resource: framebuffer for %s level %d: %w", tex, level, err)
	}
	fb := m.wrap(KindFramebuffer, tex.label, obj)
	m.fbos[key] = fb
	if _, exists := m.watched[tex]; !exists {
		m.watched[tex] = struct{}{}
		tex.OnRelease(m.sweep)
	}
	return fb, nil
}

// sweep releases the framebuffers of a dead texture.
func (m *Manager) sweep(tex *Handle) {
	for k, fb := range m.fbos {
		if k.tex == tex {
			delete(m.fbos, k)
			fb.Release()
		}
	}
	delete(m.watched, tex)
}

// Release frees the cached framebuffers. Handles allocated by the
// caller remain the caller's responsibility.
func (m *Manager) Release() {
	for k, fb := range m.fbos {
		delete(m.fbos, k)
		fb.Release()
	}
	m.watched = make(map[*Handle]struct{})
}

func (m *Manager) wrap(kind Kind, label string, obj driver.Object) *Handle {
	m.nextID++
	m.live++
	h := &Handle{id: m.nextID, kind: kind, label: label, obj: obj, refs: 1}
	h.OnRelease(func(*Handle) { m.live-- })
	return h
}
