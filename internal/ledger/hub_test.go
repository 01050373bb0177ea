package ledger

import "testing"

func TestHubDeliversPerUser(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe("a")
	b, cancelB := h.Subscribe("b")
	defer cancelB()

	h.Publish(ChangeEvent{UserID: "a", Kind: KindIncome})

	select {
	case ev := <-a:
		if ev.Kind != KindIncome {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("subscriber a got nothing")
	}
	select {
	case ev := <-b:
		t.Fatalf("subscriber b got %+v", ev)
	default:
	}

	cancelA()
	cancelA()
	if n := h.Subscribers("a"); n != 0 {
		t.Fatalf("subscribers = %d after cancel", n)
	}
	if _, ok := <-a; ok {
		t.Fatalf("channel not closed")
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("a")
	defer cancel()

	for i := 0; i < 100; i++ {
		h.Publish(ChangeEvent{UserID: "a"})
	}
}
