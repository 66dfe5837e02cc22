package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvEnvelope(t *testing.T, ch <-chan Envelope, timeout time.Duration) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for envelope")
	}
	return Envelope{}
}

func TestHubReconnectAndOrdering(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	topic := MessagesTopic(uuid.New())

	clientA := hub.NewClient(uuid.New())
	hub.Subscribe(clientA, topic)

	hub.Broadcast(Envelope{Channel: topic, Event: EventMessageInsert, Data: map[string]any{"seq": 1}})
	hub.Broadcast(Envelope{Channel: topic, Event: EventNotificationInsert, Data: map[string]any{"seq": 2}})

	if got := recvEnvelope(t, clientA.Outbound, time.Second); got.Event != EventMessageInsert {
		t.Fatalf("first event: got=%s", got.Event)
	}
	if got := recvEnvelope(t, clientA.Outbound, time.Second); got.Event != EventNotificationInsert {
		t.Fatalf("second event: got=%s", got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}
	if n := hub.Subscribers(topic); n != 0 {
		t.Fatalf("subscribers after close: %d", n)
	}

	clientB := hub.NewClient(uuid.New())
	hub.Subscribe(clientB, topic)
	hub.Broadcast(Envelope{Channel: topic, Event: EventMessageInsert})
	recvEnvelope(t, clientB.Outbound, time.Second)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	topic := NotificationsTopic(uuid.New())
	client := hub.NewClient(uuid.New())
	hub.Subscribe(client, topic)

	for i := 0; i < ClientBuffer+5; i++ {
		hub.Broadcast(Envelope{Channel: topic, Event: EventNotificationInsert, Data: i})
	}
	if got := len(client.Outbound); got != ClientBuffer {
		t.Fatalf("buffered=%d, want %d", got, ClientBuffer)
	}
	// Oldest envelopes are kept; overflow is dropped.
	if got := recvEnvelope(t, client.Outbound, time.Second); got.Data != 0 {
		t.Fatalf("first buffered data=%v, want 0", got.Data)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	topic := MessagesTopic(uuid.New())
	client := hub.NewClient(uuid.New())
	hub.Subscribe(client, topic)
	hub.Unsubscribe(client, topic)

	hub.Broadcast(Envelope{Channel: topic, Event: EventMessageInsert})
	select {
	case env := <-client.Outbound:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", env)
	case <-time.After(50 * time.Millisecond):
	}

	// Subscribing a closed client is ignored.
	hub.CloseClient(client)
	hub.Subscribe(client, topic)
	if n := hub.Subscribers(topic); n != 0 {
		t.Fatalf("closed client re-subscribed: %d", n)
	}
}

func TestTopicUser(t *testing.T) {
	uid := uuid.New()
	for _, topic := range []string{MessagesTopic(uid), NotificationsTopic(uid)} {
		got, ok := TopicUser(topic)
		if !ok || got != uid {
			t.Fatalf("TopicUser(%q)=%s,%v", topic, got, ok)
		}
	}
	if _, ok := TopicUser("presence:online"); ok {
		t.Fatalf("TopicUser: expected false for foreign topic")
	}
}
