// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"geoviz.org/render/gpu/driver"
	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/resource"
	"geoviz.org/render/gpu/state"
)

type cmdOp uint8

const (
	cmdClear cmdOp = iota
	cmdDrawArrays
	cmdDrawElements
)

// command is a clear or draw call, captured without its state.
type command struct {
	op    cmdOp
	mode  gputypes.PrimitiveTopology
	first int
	count int
	mask  driver.ClearMask
}

// RenderOperation is a deferred command together with the state it
// was submitted with. The resources referenced by the state are kept
// alive until the operation has been replayed.
type RenderOperation struct {
	state *state.Vector
	cmd   command
}

// renderQueue holds the operations deferred by the outermost queue
// block of a render target.
type renderQueue struct {
	ops []RenderOperation
}

func (c command) String() string {
	switch c.op {
	case cmdClear:
		return fmt.Sprintf("clear(%#x)", c.mask)
	case cmdDrawArrays:
		return fmt.Sprintf("draw-arrays(%d, %d, %d)", c.mode, c.first, c.count)
	case cmdDrawElements:
		return fmt.Sprintf("draw-elements(%d, %d, %d)", c.mode, c.first, c.count)
	default:
		return "command(?)"
	}
}

// check verifies that the bindings the command needs are present in v.
func (c command) check(op string, v *state.Vector, l *Layer) {
	if c.op == cmdClear {
		return
	}
	if v.VertexArray() == nil && !v.VertexAttrib(0).Enabled {
		precond.Panicf(op, "required binding missing: no vertex array and no source for attribute 0")
	}
	if c.op == cmdDrawElements {
		if l.clientArrays {
			precond.Panicf(op, "device has no buffer objects for indices")
		}
		if v.Buffer(driver.BufferElementArray) == nil {
			precond.Panicf(op, "required binding missing: no element array buffer")
		}
	}
}

func (c command) run(dev driver.Device) {
	switch c.op {
	case cmdClear:
		dev.Clear(c.mask)
	case cmdDrawArrays:
		dev.DrawArrays(c.mode, c.first, c.count)
	case cmdDrawElements:
		dev.DrawElements(c.mode, c.first, c.count)
	}
}

// Command returns a description of the deferred command.
func (o RenderOperation) Command() string {
	return o.cmd.String()
}

// State returns the state the operation was submitted with.
func (o RenderOperation) State() *state.Vector {
	return o.state.Clone()
}

func (q *renderQueue) push(v *state.Vector, cmd command) {
	s := v.Clone()
	s.Handles(func(h *resource.Handle) { h.Ref() })
	q.ops = append(q.ops, RenderOperation{state: s, cmd: cmd})
}

// flush replays the operations in submission order and drops their
// references.
func (q *renderQueue) flush(l *Layer) {
	ops := q.ops
	q.ops = nil
	for i, op := range ops {
		// Release the remaining references if a replay panics.
		func() {
			defer func() {
				if r := recover(); r != nil {
					for _, rest := range ops[i:] {
						rest.release()
					}
					panic(r)
				}
			}()
			l.issue(op.state, op.cmd)
		}()
		op.release()
		l.stats.Flushed++
	}
	if len(ops) > 0 {
		l.logger.Debug("gpu: render queue flushed", "ops", len(ops))
	}
}

// discard drops the operations without replaying them.
func (q *renderQueue) discard() int {
	n := len(q.ops)
	for _, op := range q.ops {
		op.release()
	}
	q.ops = nil
	return n
}

func (o RenderOperation) release() {
	o.state.Handles(func(h *resource.Handle) { h.Release() })
}
