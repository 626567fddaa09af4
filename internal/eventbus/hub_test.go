package eventbus

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHubDeliversToSubscribers(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Subscribe(ctx, 4)
	h.Status("onboard", "drafted")

	select {
	case evt := <-ch:
		if evt.Type != TypeStatus || evt.Data["stage"] != "drafted" || evt.Timestamp == 0 {
			t.Fatalf("evt=%+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestHubNoticeCarriesTTL(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Subscribe(ctx, 1)
	h.Notice("ingest", "数据解析失败，请重试")
	evt := <-ch
	if evt.Type != TypeNotice || evt.Data["ttl_ms"] != int64(5000) {
		t.Fatalf("evt=%+v", evt)
	}
}

func TestHubDropsForSlowConsumer(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Subscribe(ctx, 1)
	h.Publish(Event{Type: "a"})
	h.Publish(Event{Type: "b"}) // 缓冲已满，丢弃

	if evt := <-ch; evt.Type != "a" {
		t.Fatalf("evt=%+v", evt)
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func TestHubUnsubscribeOnCancel(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx, 1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	if n := h.Subscribers(); n != 0 {
		t.Fatalf("subscribers=%d, want 0", n)
	}
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	h.Publish(Event{Type: "x"})
	h.Status("a", "b")
}
