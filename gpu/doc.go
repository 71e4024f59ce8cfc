// SPDX-License-Identifier: Unlicense OR MIT

/*
Package gpu implements a state tracking layer over a legacy, stateful
graphics device.

Clients never call the device directly. They open a render with
BeginRender, change state through the setter methods of Layer and
submit draws; the layer issues device calls only for state that
actually differs from what the device already holds.

# Scopes

State changes are bracketed by scopes that save the current state on
entry and restore it on exit:

  - state blocks (BeginStateBlock),
  - render-target blocks (BeginRenderTargetBlock, BeginTarget), which
    redirect rendering into a texture,
  - render-queue blocks (BeginRenderQueueBlock), which defer draws until
    the outermost queue of the render target ends,
  - compile blocks (BeginCompileBlock), which record state changes and
    draws into a Compiled for later replay with ApplyCompiled.

Scopes nest and must be ended in reverse order. Every Begin method
returns a guard whose Release method ends the scope if it is still
open, which makes

	s := l.BeginStateBlock(false)
	defer s.Release()

safe on error paths.

# Render targets

Render targets are rendered natively through off-screen framebuffers
when the device supports them. Otherwise the target is split into
tiles that are rendered on the main surface and copied into the target
texture, which is why a TargetRender is driven tile by tile:

	tr, err := l.BeginTarget(gpu.Target{Texture: tex})
	if err != nil {
		return err
	}
	defer tr.Release()
	for {
		adj := tr.BeginTile()
		l.SetMatrix(driver.MatrixProjection, f32.Mul4(adj, proj))
		draw()
		if !tr.EndTile() {
			break
		}
	}

# Errors

Programming errors such as unbalanced scopes, out of range state or
draws outside a render panic with a *PreconditionError. Device failures
are returned as errors.

A Layer is not safe for concurrent use.
*/
package gpu
