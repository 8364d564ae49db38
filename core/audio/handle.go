package audio

import "time"

// Handle is one track's live playback instance for one playback run.
// It is created anchored at a start offset, started once, and destroyed
// either by Stop or by the renderer when the buffer runs out. A stopped
// handle never fires its completion callback.
type Handle struct {
	ctx    *Context
	buf    *Buffer
	gain   *Gain
	onDone func()

	// pos and live are guarded by ctx.mu once the handle is started.
	pos  int
	live bool
}

// NewHandle creates a handle for buf anchored at offset. The gain is
// read live by the renderer; onDone fires once if the handle plays to
// the natural end of its buffer.
func (c *Context) NewHandle(buf *Buffer, offset time.Duration, gain *Gain, onDone func()) *Handle {
	pos := int(offset.Seconds() * SampleRate)
	if pos < 0 {
		pos = 0
	}
	return &Handle{
		ctx:    c,
		buf:    buf,
		gain:   gain,
		onDone: onDone,
		pos:    pos,
	}
}

// Start registers the handle with the renderer. Starting an already
// started handle or a handle on a closed context is a no-op.
func (h *Handle) Start() {
	c := h.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || h.live {
		return
	}
	h.live = true
	c.handles[h] = struct{}{}
}

// Stop removes the handle from the renderer and suppresses its
// completion callback. Idempotent, including for handles that already
// finished naturally.
func (h *Handle) Stop() {
	c := h.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if !h.live {
		return
	}
	h.live = false
	delete(c.handles, h)
}
