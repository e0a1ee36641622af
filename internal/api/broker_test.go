package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicRuns)

	evt := Event{Type: "run.completed", Data: map[string]any{"runId": "r1"}}
	b.Publish(TopicRuns, evt)
	b.Publish("other", Event{Type: "ignored"})

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["runId"] != "r1" {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(TopicRuns, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// a second unsubscribe is a no-op
	b.Unsubscribe(TopicRuns, ch)
	b.Publish(TopicRuns, evt)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(TopicRuns)
	defer b.Unsubscribe(TopicRuns, ch)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TopicRuns, Event{Type: "run.completed"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer holds %d of %d", len(ch), cap(ch))
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newRedisBroker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer func() { _ = b.Close() }()

	ch := b.Subscribe(TopicRuns)
	b.Publish(TopicRuns, Event{Type: "run.completed", Data: map[string]any{"routes": 3}})

	select {
	case got, ok := <-ch:
		if !ok {
			t.Fatal("channel closed early")
		}
		if got.Type != "run.completed" {
			t.Fatalf("got type %s", got.Type)
		}
		// numbers come back as float64 after the JSON hop
		if got.Data["routes"] != float64(3) {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe(TopicRuns, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	if _, err := NewRedisBroker("://nope"); err == nil {
		t.Fatal("expected parse error")
	}
}
