package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", 200, time.Millisecond)
	m.IncBroadcast("message_insert", false)
	m.IncRealtimeDropped("buffer_full")
	m.SetPresenceOnline(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil metrics handler: status=%d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/api/conversations/:id/messages", 201, 20*time.Millisecond)
	m.IncMessageSent("created")
	m.IncBroadcast("message_insert", true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`echoworld_api_requests_total{method="POST",route="/api/conversations/:id/messages",status="201"} 1`,
		`echoworld_messages_sent_total{result="created"} 1`,
		`echoworld_realtime_broadcasts_total{event="message_insert",result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
