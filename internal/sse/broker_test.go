package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.PublishToolEvent(TypeToolCompleted, ToolEvent{Tool: "lookup", Generation: 3})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: ") {
			t.Errorf("missing event id in %q", s)
		}
		if !strings.Contains(s, "event: tool.completed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"tool":"lookup"`) || !strings.Contains(s, `"generation":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSessionFiltering(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	mine := b.Subscribe("s1")
	defer b.Unsubscribe(mine)
	other := b.Subscribe("s2")
	defer b.Unsubscribe(other)
	all := b.Subscribe("")
	defer b.Unsubscribe(all)

	b.PublishToolEvent(TypeToolStarted, ToolEvent{Session: "s1", Tool: "summarize"})
	b.Publish(Event{Type: TypeSettingsUpdated, Data: map[string]bool{"heritage_mode": true}})

	time.Sleep(50 * time.Millisecond)
	count := func(ch chan []byte) (tool, global int) {
		for {
			select {
			case msg := <-ch:
				if strings.Contains(string(msg), TypeToolStarted) {
					tool++
				} else {
					global++
				}
			default:
				return tool, global
			}
		}
	}

	if tool, global := count(mine); tool != 1 || global != 1 {
		t.Errorf("s1 subscriber got tool=%d global=%d, want 1/1", tool, global)
	}
	if tool, global := count(other); tool != 0 || global != 1 {
		t.Errorf("s2 subscriber got tool=%d global=%d, want 0/1", tool, global)
	}
	if tool, global := count(all); tool != 1 || global != 1 {
		t.Errorf("unfiltered subscriber got tool=%d global=%d, want 1/1", tool, global)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?session=s1", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishToolEvent(TypeToolStale, ToolEvent{Session: "s1", Tool: "lookup", Generation: 1})
	b.PublishToolEvent(TypeToolStale, ToolEvent{Session: "s2", Tool: "lookup", Generation: 1})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if strings.Count(body, "event: tool.stale") != 1 {
		t.Errorf("handler output should hold exactly the s1 event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandlerKeepAlive(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), ": ping") {
		t.Errorf("expected keep-alive comment, got %q", w.Body.String())
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeSettingsUpdated})
	b.PublishToolEvent(TypeToolFailed, ToolEvent{Tool: "lookup"})
}
