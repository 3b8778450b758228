package live

import (
	"testing"
	"time"
)

func TestSubscribeReceivesNotify(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("ins_1")
	defer cancel()

	hub.Notify("ins_1")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}
}

func TestNotifyOnlyReachesMatchingInsight(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe("ins_1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("ins_2")
	defer cancel2()

	hub.Notify("ins_1")

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("ins_1 subscriber did not receive notification")
	}

	select {
	case <-ch2:
		t.Fatal("ins_2 subscriber received a notification for ins_1")
	default:
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("ins_1")

	if got := hub.SubscriberCount("ins_1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()

	if got := hub.SubscriberCount("ins_1"); got != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", got)
	}

	hub.Notify("ins_1")
	select {
	case <-ch:
		t.Fatal("cancelled subscriber received a notification")
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe("ins_1")
	cancel()
	cancel()
}

func TestNotifyCoalescesPendingTicks(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("ins_1")
	defer cancel()

	hub.Notify("ins_1")
	hub.Notify("ins_1")
	hub.Notify("ins_1")

	<-ch
	select {
	case <-ch:
		t.Fatal("expected ticks to coalesce into one pending notification")
	default:
	}
}

func TestNotifyWithoutSubscribersIsSafe(t *testing.T) {
	hub := NewHub()
	hub.Notify("ins_never_subscribed")
}

func TestMultipleSubscribersSameInsight(t *testing.T) {
	hub := NewHub()
	ch1, cancel1 := hub.Subscribe("ins_1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("ins_1")
	defer cancel2()

	hub.Notify("ins_1")

	for i, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive notification", i+1)
		}
	}
}
