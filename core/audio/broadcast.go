package audio

import "sync"

// Broadcaster fans rendered frames out to any number of listeners.
// Publishing never blocks: a listener whose channel is full misses the
// frame rather than stalling the renderer.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[chan []int16]struct{}
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[chan []int16]struct{}),
	}
}

// Subscribe registers a new listener and returns its frame channel.
func (b *Broadcaster) Subscribe() chan []int16 {
	ch := make(chan []int16, 32)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[ch]; !ok {
		return
	}
	delete(b.listeners, ch)
	close(ch)
}

// Publish delivers a frame to every listener that can take it.
func (b *Broadcaster) Publish(frame []int16) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners {
		select {
		case ch <- frame:
		default:
			// Listener is behind, drop the frame for it.
		}
	}
}

// ListenerCount reports the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
