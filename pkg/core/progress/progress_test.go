package progress

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribeReplaysBacklog(t *testing.T) {
	c := New()
	c.Publish(Event{Seq: 1, Percent: 10, Status: "fetching"})
	c.Publish(Event{Seq: 2, Percent: 40, Status: "classifying"})

	ch, backlog := c.Subscribe()
	defer c.Unsubscribe(ch)
	if len(backlog) != 2 {
		t.Fatalf("expected a 2-event backlog, got %d", len(backlog))
	}
	if backlog[0].Seq != 1 || backlog[1].Seq != 2 {
		t.Errorf("backlog out of order: %+v", backlog)
	}
}

func TestPublishDeliversLiveToSubscribers(t *testing.T) {
	c := New()
	ch, _ := c.Subscribe()
	defer c.Unsubscribe(ch)

	c.Publish(Event{Seq: 1, Percent: 50, Status: "aggregating"})
	select {
	case e := <-ch:
		if e.Seq != 1 {
			t.Errorf("got seq %d, want 1", e.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestTerminalEventClosesAllSubscribers(t *testing.T) {
	c := New()
	ch, _ := c.Subscribe()
	c.Publish(Event{Seq: 1, Terminal: true, State: "succeeded"})

	select {
	case _, ok := <-ch:
		if ok {
			// the terminal event itself may still be buffered; drain once more.
			if _, ok2 := <-ch; ok2 {
				t.Fatal("expected channel to be closed after the terminal event")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestSubscribeAfterTerminalGetsSyntheticFinalEvent(t *testing.T) {
	c := New()
	c.Publish(Event{Seq: 1, Percent: 20, Status: "fetching"})
	c.Publish(Event{Seq: 2, Terminal: true, State: "failed"})

	ch, backlog := c.Subscribe()
	if len(backlog) != 1 {
		t.Fatalf("expected a single synthetic final event, got %d", len(backlog))
	}
	if !backlog[0].Terminal || backlog[0].State != "failed" {
		t.Errorf("expected the terminal event replayed, got %+v", backlog[0])
	}
	if _, ok := <-ch; ok {
		t.Error("expected the channel for a late subscriber to already be closed")
	}
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	c := New()
	c.Publish(Event{Seq: 1, Terminal: true})
	c.Publish(Event{Seq: 2, Percent: 100})

	_, backlog := c.Subscribe()
	if len(backlog) != 1 {
		t.Fatalf("expected publish-after-close to be dropped, got backlog %+v", backlog)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c := New()
	ch, _ := c.Subscribe()
	c.Unsubscribe(ch)
	c.Unsubscribe(ch) // must not panic on a second call
}

func TestSlowConsumerDropsOldestRatherThanBlocking(t *testing.T) {
	c := New()
	ch, _ := c.Subscribe()
	defer c.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			c.Publish(Event{Seq: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow consumer instead of dropping events")
	}
}
