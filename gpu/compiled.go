// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"cmp"

	"golang.org/x/exp/slices"

	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/resource"
	"geoviz.org/render/gpu/state"
)

// Compiled is a recorded sequence of state changes and draws. It keeps
// every resource it refers to alive until its last reference is
// released, independently of the references held by the client.
type Compiled struct {
	refs     int
	entries  []entry
	retained map[*resource.Handle]struct{}
	// open is set while a compile block records into the Compiled.
	open bool
}

type entryKind uint8

const (
	entryChange entryKind = iota
	entryDraw
	entryCall
	// entrySave and entryRestore bracket a scope opened while
	// recording.
	entrySave
	entryRestore
	// entryReset replaces the state by the defaults of the target.
	entryReset
)

type entry struct {
	kind   entryKind
	change state.Change
	cmd    command
	call   *Compiled
}

func newCompiled() *Compiled {
	return &Compiled{refs: 1, retained: make(map[*resource.Handle]struct{})}
}

// Len returns the number of recorded entries.
func (c *Compiled) Len() int {
	return len(c.entries)
}

// Resources returns the resources retained by c, ordered by ID.
// Resources retained by nested compiled states are not included.
func (c *Compiled) Resources() []*resource.Handle {
	res := make([]*resource.Handle, 0, len(c.retained))
	for h := range c.retained {
		res = append(res, h)
	}
	slices.SortFunc(res, func(a, b *resource.Handle) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	return res
}

// Alive reports whether c still holds references.
func (c *Compiled) Alive() bool {
	return c.refs > 0
}

// Ref adds a reference and returns c.
func (c *Compiled) Ref() *Compiled {
	if c.refs <= 0 {
		precond.Panicf("Compiled.Ref", "compiled state already released")
	}
	c.refs++
	return c
}

// Release drops a reference. The retained resources and nested
// compiled states are released with the last reference.
func (c *Compiled) Release() {
	if c.refs <= 0 {
		precond.Panicf("Compiled.Release", "compiled state already released")
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	for h := range c.retained {
		h.Release()
	}
	c.retained = nil
	for _, e := range c.entries {
		if e.kind == entryCall {
			e.call.Release()
		}
	}
	c.entries = nil
}

func (c *Compiled) retain(h *resource.Handle) {
	if _, exists := c.retained[h]; exists {
		return
	}
	c.retained[h] = struct{}{}
	h.Ref()
}

func (c *Compiled) record(e entry) {
	if h := e.change.Value.Handle(); e.kind == entryChange && h != nil {
		c.retain(h)
	}
	c.entries = append(c.entries, e)
}

// recordDraw records cmd and retains every resource bound in v.
func (c *Compiled) recordDraw(cmd command, v *state.Vector) {
	v.Handles(c.retain)
	c.entries = append(c.entries, entry{kind: entryDraw, cmd: cmd})
}

func (c *Compiled) recordCall(n *Compiled) {
	c.entries = append(c.entries, entry{kind: entryCall, call: n.Ref()})
}

// calls reports whether c, or a compiled state it calls, is n.
func (c *Compiled) calls(n *Compiled) bool {
	if c == n {
		return true
	}
	return slices.ContainsFunc(c.entries, func(e entry) bool {
		return e.kind == entryCall && e.call.calls(n)
	})
}

// ApplyCompiled replays c on top of the current state. State changes
// recorded in c persist in the current scope like direct setter calls
// and draws are routed like direct draws. Inside a compile block the
// call itself is recorded and c is retained.
func (l *Layer) ApplyCompiled(c *Compiled) {
	l.current("ApplyCompiled")
	l.mustNotPainting("ApplyCompiled")
	if !c.Alive() {
		precond.Panicf("ApplyCompiled", "compiled state already released")
	}
	if c.open {
		precond.Panicf("ApplyCompiled", "compiled state is still recording")
	}
	if f := l.compileFrame(); f != nil {
		if c.calls(f.compiled) {
			precond.Panicf("ApplyCompiled", "compiled state applied into itself")
		}
		f.compiled.recordCall(c)
		l.stats.Recorded++
		return
	}
	l.replay(c)
}

func (l *Layer) replay(c *Compiled) {
	var saved []*state.Vector
	for _, e := range c.entries {
		switch e.kind {
		case entryChange:
			l.cur.Set(e.change)
		case entryDraw:
			l.submit("ApplyCompiled", e.cmd)
		case entryCall:
			l.replay(e.call)
		case entrySave:
			saved = append(saved, l.cur.Clone())
		case entryRestore:
			n := len(saved) - 1
			l.cur = saved[n]
			saved = saved[:n]
		case entryReset:
			l.cur = l.targetFrame().target.resetState()
		}
	}
}
