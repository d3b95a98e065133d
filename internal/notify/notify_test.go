package notify

import "testing"

func TestHub_FanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish()

	select {
	case <-a:
	default:
		t.Fatal("subscriber a did not receive the signal")
	}
	select {
	case <-b:
	default:
		t.Fatal("subscriber b did not receive the signal")
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	// Nobody drains ch; repeated publishes must coalesce, not block.
	for i := 0; i < 10; i++ {
		h.Publish()
	}

	<-ch
	select {
	case <-ch:
		t.Fatal("signals must coalesce into a single pending notification")
	default:
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)

	h.Publish()

	select {
	case <-ch:
		t.Fatal("unsubscribed channel must not receive signals")
	default:
	}
}
