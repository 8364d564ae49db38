package audio

import (
	"sync"
	"time"

	"stemdeck/logger"
)

// Context owns the render loop and every live playback handle. It is
// created once, injected into the engine, and torn down with Shutdown.
// The renderer keeps emitting frames (silence when idle) so downstream
// sinks see a continuous stream.
type Context struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
	closed  bool

	out     *Broadcaster
	speaker *speaker

	done chan struct{}
	wg   sync.WaitGroup
}

// NewContext starts the render loop and returns the context.
func NewContext() *Context {
	c := &Context{
		handles: make(map[*Handle]struct{}),
		out:     NewBroadcaster(),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.renderLoop()
	return c
}

// Output returns the broadcaster carrying the rendered mix. Sinks
// subscribe to it for frames of interleaved int16 stereo.
func (c *Context) Output() *Broadcaster {
	return c.out
}

// AttachSpeaker routes the rendered mix to the local audio device.
func (c *Context) AttachSpeaker() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if c.speaker != nil {
		return nil
	}
	s, err := newSpeaker(c.out)
	if err != nil {
		return err
	}
	c.speaker = s
	return nil
}

// Shutdown stops the renderer, drops all live handles without firing
// their callbacks, and releases the speaker if attached. Safe to call
// more than once.
func (c *Context) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for h := range c.handles {
		h.live = false
	}
	c.handles = make(map[*Handle]struct{})
	s := c.speaker
	c.speaker = nil
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	if s != nil {
		s.close()
	}
	logger.Debug("audio context shut down")
}

func (c *Context) renderLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	acc := make([]int32, QuantumFrames*ChannelCount)
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.renderQuantum(acc)
		}
	}
}

// renderQuantum mixes every live handle into one output frame, advances
// handle positions, and retires handles that ran past their buffer end.
// Completion callbacks fire after the context lock is released.
func (c *Context) renderQuantum(acc []int32) {
	for i := range acc {
		acc[i] = 0
	}

	var finished []*Handle
	c.mu.Lock()
	for h := range c.handles {
		start := h.pos
		frames := h.buf.Frames() - start
		if frames <= 0 {
			finished = append(finished, h)
			continue
		}
		if frames > QuantumFrames {
			frames = QuantumFrames
		}
		if gain := h.gain.Value(); gain != 0 {
			src := h.buf.samples[start*ChannelCount : (start+frames)*ChannelCount]
			for i, s := range src {
				acc[i] += int32(float64(s) * gain)
			}
		}
		h.pos = start + frames
		if h.pos >= h.buf.Frames() {
			finished = append(finished, h)
		}
	}
	for _, h := range finished {
		h.live = false
		delete(c.handles, h)
	}
	c.mu.Unlock()

	frame := make([]int16, len(acc))
	for i, v := range acc {
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		frame[i] = int16(v)
	}
	c.out.Publish(frame)

	for _, h := range finished {
		if h.onDone != nil {
			h.onDone()
		}
	}
}
