package audio

import (
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	if got := b.ListenerCount(); got != 0 {
		t.Errorf("new broadcaster: ListenerCount = %d, want 0", got)
	}

	ch := b.Subscribe()
	if got := b.ListenerCount(); got != 1 {
		t.Errorf("after subscribe: ListenerCount = %d, want 1", got)
	}

	b.Unsubscribe(ch)
	if got := b.ListenerCount(); got != 0 {
		t.Errorf("after unsubscribe: ListenerCount = %d, want 0", got)
	}
	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}

	// Unsubscribing twice must not panic.
	b.Unsubscribe(ch)
}

func TestBroadcasterDelivers(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	frame := []int16{1, 2, 3, 4}
	b.Publish(frame)

	for i, ch := range []chan []int16{ch1, ch2} {
		select {
		case got := <-ch:
			if len(got) != len(frame) || got[0] != 1 {
				t.Errorf("listener %d got %v, want %v", i, got, frame)
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d: no frame within 1s", i)
		}
	}
}

func TestBroadcasterDropsWhenListenerFull(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	ch := b.Subscribe()

	// Overfill the listener buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(ch)*3; i++ {
			b.Publish([]int16{int16(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow listener")
	}
	if got := len(ch); got != cap(ch) {
		t.Errorf("listener buffered %d frames, want full buffer %d", got, cap(ch))
	}
}
