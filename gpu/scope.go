// SPDX-License-Identifier: Unlicense OR MIT

package gpu

import (
	"geoviz.org/render/gpu/internal/precond"
	"geoviz.org/render/gpu/state"
)

// ScopeKind identifies the kind of an open scope.
type ScopeKind uint8

const (
	// KindState is a state block.
	KindState ScopeKind = iota
	// KindRenderTarget is a render-target block, including the main
	// surface render started by BeginRender.
	KindRenderTarget
	// KindRenderQueue is a render-queue block.
	KindRenderQueue
	// KindCompile is a compile block.
	KindCompile
)

// frame is an entry of the scope stack. Every frame saves the
// requested state on entry and restores it on exit.
type frame struct {
	kind  ScopeKind
	scope *Scope
	saved *state.Vector

	// Render-target frames.
	target *TargetRender
	// queue collects the operations of the outermost open queue
	// block of the render target.
	queue *renderQueue

	// Queue frames. outer is set for the outermost queue of the render
	// target, which owns the queue.
	outer bool

	// Compile frames.
	compiled *Compiled
	created  bool
}

// Scope is a guard for an open scope.
type Scope struct {
	l      *Layer
	f      *frame
	done   bool
	result *Compiled
}

func (k ScopeKind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindRenderTarget:
		return "render-target"
	case KindRenderQueue:
		return "render-queue"
	case KindCompile:
		return "compile"
	default:
		return "scope(?)"
	}
}

// Kind returns the kind of the scope.
func (s *Scope) Kind() ScopeKind {
	return s.f.kind
}

// Open reports whether the scope has not ended yet.
func (s *Scope) Open() bool {
	return !s.done
}

// Compiled returns the result of a compile scope ended by End.
func (s *Scope) Compiled() *Compiled {
	return s.result
}

// End ends the scope, which must be the innermost open scope. Ending
// an ended scope does nothing.
func (s *Scope) End() {
	if s.done {
		return
	}
	l := s.l
	if top := l.topFrame("Scope.End"); top != s.f {
		precond.Panicf("Scope.End", "%s scope is not innermost, %s scope still open", s.f.kind, top.kind)
	}
	switch s.f.kind {
	case KindState:
		l.EndStateBlock()
	case KindRenderQueue:
		l.EndRenderQueueBlock()
	case KindCompile:
		s.result = l.EndCompileBlock()
	case KindRenderTarget:
		if s.f.target.main {
			l.EndRender()
		} else {
			l.EndRenderTargetBlock()
		}
	}
}

// Release ends the scope if it is still open, first ending any scope
// left open inside it. Queued operations of abandoned queues are
// discarded and compiled states of abandoned compile blocks are
// released. Panics raised while cleaning up are logged, not
// propagated; the scope is closed regardless. Release is meant to be
// deferred.
func (s *Scope) Release() {
	l := s.l
	for !s.done {
		top := l.frames[len(l.frames)-1]
		if top != s.f {
			l.logger.Warn("gpu: scope left open", "scope", top.kind)
		}
		l.unwind(top)
	}
}

// unwind aborts the innermost frame f. If aborting panics, f and the
// frames inside it are dropped without further cleanup.
func (l *Layer) unwind(f *frame) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("gpu: scope cleanup failed", "scope", f.kind, "err", r)
			l.drop(f)
		}
	}()
	l.abort(f)
}

// drop removes f and the frames above it from the stack.
func (l *Layer) drop(f *frame) {
	if f.scope.done {
		return
	}
	for {
		top := l.frames[len(l.frames)-1]
		l.frames[len(l.frames)-1] = nil
		l.frames = l.frames[:len(l.frames)-1]
		top.scope.done = true
		l.cur = top.saved
		switch top.kind {
		case KindRenderQueue:
			if rt := l.targetFrame(); top.outer && rt.queue != nil {
				rt.queue.discard()
				rt.queue = nil
			}
		case KindRenderTarget:
			if top.queue != nil {
				top.queue.discard()
				top.queue = nil
			}
			if !top.target.main {
				top.target.t.Texture.Release()
			}
		case KindCompile:
			top.compiled.open = false
			top.compiled.Release()
		}
		if top == f {
			break
		}
	}
	if len(l.frames) == 0 {
		l.cur = nil
		l.painting = false
		l.painter = nil
	}
}

// abort ends the innermost frame f on an error path.
func (l *Layer) abort(f *frame) {
	switch f.kind {
	case KindState:
		l.pop(KindState, "Scope.Release")
	case KindRenderQueue:
		if rt := l.targetFrame(); f.outer && rt.queue != nil {
			if n := rt.queue.discard(); n > 0 {
				l.logger.Warn("gpu: queued operations discarded", "ops", n)
			}
			rt.queue = nil
		}
		l.pop(KindRenderQueue, "Scope.Release")
	case KindCompile:
		c := f.compiled
		c.open = false
		l.pop(KindCompile, "Scope.Release")
		c.Release()
	case KindRenderTarget:
		if !f.target.main {
			l.EndRenderTargetBlock()
			return
		}
		if l.painting {
			l.EndExternalPaint(false)
		}
		l.EndRender()
	}
}

// Depth returns the number of open scopes, including the render.
func (l *Layer) Depth() int {
	return len(l.frames)
}

// Innermost returns the kind of the innermost open scope.
func (l *Layer) Innermost() (ScopeKind, bool) {
	if len(l.frames) == 0 {
		return 0, false
	}
	return l.frames[len(l.frames)-1].kind, true
}

// push opens a frame. Callers check that a render is in progress,
// except BeginRender, which pushes the first frame.
func (l *Layer) push(kind ScopeKind) *frame {
	f := &frame{kind: kind, saved: l.cur.Clone()}
	f.scope = &Scope{l: l, f: f}
	if c := l.compileFrame(); c != nil && kind != KindCompile {
		c.compiled.record(entry{kind: entrySave})
		l.stats.Recorded++
	}
	l.frames = append(l.frames, f)
	return f
}

func (l *Layer) topFrame(op string) *frame {
	if len(l.frames) == 0 {
		precond.Panicf(op, "no open scope")
	}
	return l.frames[len(l.frames)-1]
}

// top returns the innermost frame after checking its kind.
func (l *Layer) top(kind ScopeKind, op string) *frame {
	f := l.topFrame(op)
	if f.kind != kind {
		precond.Panicf(op, "unbalanced scopes: innermost scope is a %s block, not a %s block", f.kind, kind)
	}
	return f
}

// pop removes the innermost frame and restores the state it saved.
func (l *Layer) pop(kind ScopeKind, op string) *frame {
	f := l.top(kind, op)
	l.frames[len(l.frames)-1] = nil
	l.frames = l.frames[:len(l.frames)-1]
	f.scope.done = true
	l.cur = f.saved
	if c := l.compileFrame(); c != nil && kind != KindCompile {
		c.compiled.record(entry{kind: entryRestore})
		l.stats.Recorded++
	}
	if l.cfg.Debug.Validate {
		l.validate(op)
	}
	return f
}

// compileFrame returns the innermost compile frame, or nil.
func (l *Layer) compileFrame() *frame {
	for i := len(l.frames) - 1; i >= 0; i-- {
		if f := l.frames[i]; f.kind == KindCompile {
			return f
		}
	}
	return nil
}

// targetFrame returns the innermost render-target frame.
func (l *Layer) targetFrame() *frame {
	for i := len(l.frames) - 1; i >= 0; i-- {
		if f := l.frames[i]; f.kind == KindRenderTarget {
			return f
		}
	}
	precond.Panicf("gpu", "no render in progress")
	return nil
}

// deferringFrame returns the frame that would defer a draw issued now:
// the innermost compile frame, or the innermost queue frame of the
// current render target.
func (l *Layer) deferringFrame() *frame {
	if f := l.compileFrame(); f != nil {
		return f
	}
	for i := len(l.frames) - 1; i >= 0; i-- {
		switch f := l.frames[i]; f.kind {
		case KindRenderQueue:
			return f
		case KindRenderTarget:
			return nil
		}
	}
	return nil
}

// validate checks the consistency of the scope stack.
func (l *Layer) validate(op string) {
	if len(l.frames) == 0 {
		return
	}
	if f := l.frames[0]; f.kind != KindRenderTarget || !f.target.main {
		precond.Panicf(op, "scope stack corrupt: base scope is a %s block", f.kind)
	}
	var rt *frame
	queued := false
	for _, f := range l.frames {
		switch f.kind {
		case KindRenderTarget:
			if rt != nil && (rt.queue != nil) != queued {
				precond.Panicf(op, "scope stack corrupt: queue ownership mismatch")
			}
			rt, queued = f, false
		case KindRenderQueue:
			if f.outer == queued {
				precond.Panicf(op, "scope stack corrupt: misplaced outermost queue")
			}
			queued = true
		case KindCompile:
			if !f.compiled.open {
				precond.Panicf(op, "scope stack corrupt: compile block not recording")
			}
		}
	}
	if (rt.queue != nil) != queued {
		precond.Panicf(op, "scope stack corrupt: queue ownership mismatch")
	}
}

// BeginStateBlock saves the requested state, to be restored by the
// matching EndStateBlock. With reset the state is replaced by the
// defaults of the current render target.
func (l *Layer) BeginStateBlock(reset bool) *Scope {
	l.current("BeginStateBlock")
	f := l.push(KindState)
	if reset {
		l.cur = l.targetFrame().target.resetState()
		if c := l.compileFrame(); c != nil {
			c.compiled.record(entry{kind: entryReset})
			l.stats.Recorded++
		}
	}
	return f.scope
}

// EndStateBlock restores the state saved by the matching
// BeginStateBlock.
func (l *Layer) EndStateBlock() {
	l.pop(KindState, "EndStateBlock")
}

// BeginRenderQueueBlock defers the draws of the current render target
// until its outermost queue block ends. Queue blocks inside the
// outermost one share its queue.
func (l *Layer) BeginRenderQueueBlock() *Scope {
	l.current("BeginRenderQueueBlock")
	rt := l.targetFrame()
	f := l.push(KindRenderQueue)
	if rt.queue == nil {
		rt.queue = new(renderQueue)
		f.outer = true
	}
	return f.scope
}

// EndRenderQueueBlock ends a queue block. The outermost queue block
// of a render target replays the deferred operations in submission
// order.
func (l *Layer) EndRenderQueueBlock() {
	f := l.top(KindRenderQueue, "EndRenderQueueBlock")
	var q *renderQueue
	if f.outer {
		rt := l.targetFrame()
		q, rt.queue = rt.queue, nil
	}
	// A failing replay leaves the block closed.
	l.pop(KindRenderQueue, "EndRenderQueueBlock")
	if q != nil {
		q.flush(l)
	}
}

// Pending returns the operations deferred by the queue of the current
// render target.
func (l *Layer) Pending() []RenderOperation {
	l.current("Pending")
	q := l.targetFrame().queue
	if q == nil {
		return nil
	}
	return append([]RenderOperation(nil), q.ops...)
}

// BeginCompileBlock records state changes and draws instead of
// executing them. A nil existing starts a new compiled state; otherwise
// the recording is appended to existing.
func (l *Layer) BeginCompileBlock(existing *Compiled) *Scope {
	l.current("BeginCompileBlock")
	l.mustNotPainting("BeginCompileBlock")
	c := existing
	if c == nil {
		c = newCompiled()
	} else {
		if !c.Alive() {
			precond.Panicf("BeginCompileBlock", "compiled state already released")
		}
		if c.open {
			precond.Panicf("BeginCompileBlock", "compiled state is already recording")
		}
		c.Ref()
	}
	c.open = true
	f := l.push(KindCompile)
	f.compiled = c
	f.created = existing == nil
	return f.scope
}

// EndCompileBlock ends a compile block and returns the compiled state.
// A compiled state created by the block is owned by the caller, who
// must release it.
func (l *Layer) EndCompileBlock() *Compiled {
	f := l.top(KindCompile, "EndCompileBlock")
	c := f.compiled
	c.open = false
	l.pop(KindCompile, "EndCompileBlock")
	if !f.created {
		c.Release()
	}
	return c
}
