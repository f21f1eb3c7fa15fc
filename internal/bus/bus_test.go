package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(NewEvent(KindMessageReceived, "hi"))

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageReceived {
			t.Errorf("got kind %q, want %s", evt.Kind, KindMessageReceived)
		}
		if evt.Timestamp.IsZero() {
			t.Error("NewEvent did not stamp Timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("broadcast.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageStatus})
	b.Publish(Event{Kind: KindBroadcastSent})

	select {
	case evt := <-ch:
		if evt.Kind != KindBroadcastSent {
			t.Errorf("got kind %q, want %s", evt.Kind, KindBroadcastSent)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}

	b.Publish(Event{Kind: KindMessageReceived})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("live.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindLiveRegistered})
	b.Publish(Event{Kind: KindLiveClosed})

	evt := <-ch
	if evt.Kind != KindLiveRegistered {
		t.Errorf("got %q, want %s", evt.Kind, KindLiveRegistered)
	}
	if d := b.Dropped(); d != 1 {
		t.Errorf("Dropped() = %d, want 1", d)
	}
}
