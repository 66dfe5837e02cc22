package presence

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func bareTracker() *Tracker {
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &Tracker{
		state: State{},
		snap:  State{},
		now:   func() time.Time { return fixed },
	}
}

func TestTrackerApply(t *testing.T) {
	u := uuid.New()
	v := uuid.New()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	tests := []struct {
		name   string
		events []Event
		want   State
	}{
		{
			name:   "sync rebuilds",
			events: []Event{{Kind: EventJoin, Meta: Meta{UserID: v, OnlineAt: t0}}, {Kind: EventSync, Snapshot: []Meta{{UserID: u, OnlineAt: t0}}}},
			want:   State{u: {Online: true, LastSeen: t0}},
		},
		{
			name:   "leave preserves last seen",
			events: []Event{{Kind: EventJoin, Meta: Meta{UserID: u, OnlineAt: t0}}, {Kind: EventLeave, Meta: Meta{UserID: u, OnlineAt: t1}}},
			want:   State{u: {Online: false, LastSeen: t0}},
		},
		{
			name:   "leave for unknown user uses event time",
			events: []Event{{Kind: EventLeave, Meta: Meta{UserID: u, OnlineAt: t1}}},
			want:   State{u: {Online: false, LastSeen: t1}},
		},
		{
			name:   "join without timestamp uses now",
			events: []Event{{Kind: EventJoin, Meta: Meta{UserID: u}}},
			want:   State{u: {Online: true, LastSeen: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}},
		},
		{
			name:   "sync then leave is last applied",
			events: []Event{{Kind: EventSync, Snapshot: []Meta{{UserID: u, OnlineAt: t0}}}, {Kind: EventLeave, Meta: Meta{UserID: u, OnlineAt: t0}}},
			want:   State{u: {Online: false, LastSeen: t0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := bareTracker()
			for _, ev := range tt.events {
				tr.apply(ev)
			}
			got := tr.State()
			if len(got) != len(tt.want) {
				t.Fatalf("state=%v, want %v", got, tt.want)
			}
			for k, w := range tt.want {
				g := got[k]
				if g.Online != w.Online || !g.LastSeen.Equal(w.LastSeen) {
					t.Fatalf("state[%s]=%+v, want %+v", k, g, w)
				}
			}
		})
	}
}

func TestStateIsACopy(t *testing.T) {
	tr := bareTracker()
	u := uuid.New()
	tr.apply(Event{Kind: EventJoin, Meta: Meta{UserID: u}})
	s := tr.State()
	s[u] = Status{}
	if !tr.State()[u].Online {
		t.Fatalf("mutating a State copy changed the tracker")
	}
}

func TestTrackersSeeEachOther(t *testing.T) {
	log := logger.Nop()
	hub := NewHub(log, time.Minute)
	a, b := uuid.New(), uuid.New()

	ta := NewTracker(hub, log, time.Hour)
	defer ta.Close()
	tb := NewTracker(hub, log, time.Hour)
	defer tb.Close()

	ta.Start(a, DefaultChannel)
	eventually(t, "self online", func() bool { return ta.State()[a].Online })

	tb.Start(b, DefaultChannel)
	eventually(t, "peer join", func() bool { return ta.State()[b].Online })
	eventually(t, "sync on subscribe", func() bool { return tb.State()[a].Online })
	joinedAt := ta.State()[b].LastSeen

	tb.Stop()
	eventually(t, "peer leave", func() bool {
		st, ok := ta.State()[b]
		return ok && !st.Online
	})
	if got := ta.State()[b].LastSeen; !got.Equal(joinedAt) {
		t.Fatalf("leave changed last seen: got %v, want %v", got, joinedAt)
	}
	eventually(t, "stopped tracker resets", func() bool { return len(tb.State()) == 0 })

	if st := hub.State(DefaultChannel)[b]; st.Online {
		t.Fatalf("hub still reports %s online", b)
	}
}

func TestTrackerRestartWithSameIdentityIsNoop(t *testing.T) {
	log := logger.Nop()
	hub := NewHub(log, time.Minute)
	u := uuid.New()
	tr := NewTracker(hub, log, time.Hour)
	defer tr.Close()

	changes := make(chan State, 16)
	tr.OnChange(func(s State) { changes <- s })

	tr.Start(u, DefaultChannel)
	eventually(t, "online", func() bool { return tr.State()[u].Online })
	for len(changes) > 0 {
		<-changes
	}
	tr.Start(u, DefaultChannel)
	select {
	case s := <-changes:
		t.Fatalf("restart with same identity produced a change: %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSweepExpiresStaleEntries(t *testing.T) {
	hub := NewHub(logger.Nop(), 90*time.Second)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return now }

	u, w := uuid.New(), uuid.New()
	subU := hub.Subscribe(DefaultChannel, u)
	hub.Track(subU, Meta{})
	watcher := hub.Subscribe(DefaultChannel, w)

	if ev := <-watcher.Events(); ev.Kind != EventSync || len(ev.Snapshot) != 1 || ev.Snapshot[0].UserID != u {
		t.Fatalf("first event=%+v, want sync with %s", ev, u)
	}

	now = now.Add(60 * time.Second)
	if n := hub.Sweep(); n != 0 {
		t.Fatalf("Sweep before ttl expired %d entries", n)
	}
	now = now.Add(31 * time.Second)
	if n := hub.Sweep(); n != 1 {
		t.Fatalf("Sweep after ttl expired %d entries, want 1", n)
	}
	ev := <-watcher.Events()
	if ev.Kind != EventLeave || ev.Meta.UserID != u {
		t.Fatalf("event=%+v, want leave for %s", ev, u)
	}
	if st := hub.State(DefaultChannel)[u]; st.Online || st.LastSeen.IsZero() {
		t.Fatalf("hub state after expiry=%+v", st)
	}

	hub.Unsubscribe(subU)
	hub.Unsubscribe(subU)
	hub.Unsubscribe(watcher)
	if _, ok := <-watcher.Events(); ok {
		t.Fatalf("watcher events should be closed")
	}
}

func TestHubLeaveWaitsForLastReference(t *testing.T) {
	hub := NewHub(logger.Nop(), time.Minute)
	u := uuid.New()
	tab1 := hub.Subscribe(DefaultChannel, u)
	tab2 := hub.Subscribe(DefaultChannel, u)
	hub.Track(tab1, Meta{})
	hub.Track(tab2, Meta{})

	hub.Unsubscribe(tab1)
	if !hub.State(DefaultChannel)[u].Online {
		t.Fatalf("closing one tab should keep the user online")
	}
	hub.Unsubscribe(tab2)
	if hub.State(DefaultChannel)[u].Online {
		t.Fatalf("closing the last tab should mark the user offline")
	}
}
