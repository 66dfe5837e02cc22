package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

const DefaultHeartbeat = 30 * time.Second

// Tracker keeps a presence map for one identity on one channel. All state changes
// happen on its loop goroutine; callers read copies through State.
type Tracker struct {
	hub       *Hub
	log       *logger.Logger
	heartbeat time.Duration
	now       func() time.Time

	cmds chan func()
	quit chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once

	snapMu sync.RWMutex
	snap   State

	cbMu     sync.Mutex
	onChange func(State)

	// loop-owned
	state   State
	sub     *Subscription
	userID  uuid.UUID
	channel string
	ticker  *time.Ticker
	pending []func()
}

func NewTracker(hub *Hub, log *logger.Logger, heartbeat time.Duration) *Tracker {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	t := &Tracker{
		hub:       hub,
		log:       log.With("component", "PresenceTracker"),
		heartbeat: heartbeat,
		now:       func() time.Time { return time.Now().UTC() },
		cmds:      make(chan func(), 16),
		quit:      make(chan struct{}),
		state:     State{},
		snap:      State{},
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// OnChange registers a callback invoked on the loop goroutine with a copy of the state.
func (t *Tracker) OnChange(fn func(State)) {
	t.cbMu.Lock()
	t.onChange = fn
	t.cbMu.Unlock()
}

// State returns a copy of the current presence map.
func (t *Tracker) State() State {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.snap.Clone()
}

// Start subscribes userID on channel, tracks it and arms the heartbeat. Calling it
// with the current identity and channel is a no-op; anything else replaces the subscription.
func (t *Tracker) Start(userID uuid.UUID, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	t.post(func() {
		if t.sub != nil && t.userID == userID && t.channel == channel {
			return
		}
		t.teardown()
		if userID == uuid.Nil {
			return
		}
		t.userID = userID
		t.channel = channel
		t.sub = t.hub.Subscribe(channel, userID)
		t.hub.Track(t.sub, Meta{UserID: userID, OnlineAt: t.now()})
		t.ticker = time.NewTicker(t.heartbeat)
		t.log.Debug("presence tracking", "user_id", userID, "channel", channel)
	})
}

// Stop unsubscribes and clears the heartbeat; the map resets on the next loop turn.
func (t *Tracker) Stop() {
	t.post(t.teardown)
}

// Close stops tracking and ends the loop.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.post(t.teardown)
		close(t.quit)
		t.wg.Wait()
	})
}

func (t *Tracker) post(fn func()) {
	select {
	case <-t.quit:
	case t.cmds <- fn:
	}
}

// teardown runs on the loop. The reset is deferred so it never happens inside the
// same turn that handled the triggering event.
func (t *Tracker) teardown() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.sub != nil {
		t.hub.Unsubscribe(t.sub)
		t.sub = nil
	}
	t.userID = uuid.Nil
	t.channel = ""
	t.pending = append(t.pending, func() {
		t.state = State{}
		t.publish()
	})
}

func (t *Tracker) loop() {
	defer t.wg.Done()
	for {
		if len(t.pending) > 0 {
			next := t.pending
			t.pending = nil
			for _, fn := range next {
				fn()
			}
			continue
		}

		var events <-chan Event
		if t.sub != nil {
			events = t.sub.Events()
		}
		var beat <-chan time.Time
		if t.ticker != nil {
			beat = t.ticker.C
		}

		select {
		case <-t.quit:
			for {
				select {
				case fn := <-t.cmds:
					fn()
				default:
					if t.sub != nil {
						t.hub.Unsubscribe(t.sub)
					}
					return
				}
			}
		case fn := <-t.cmds:
			fn()
		case <-beat:
			if t.sub != nil {
				t.hub.Track(t.sub, Meta{UserID: t.userID, OnlineAt: t.now()})
			}
		case ev, ok := <-events:
			if !ok {
				t.sub = nil
				continue
			}
			t.apply(ev)
		}
	}
}

func (t *Tracker) apply(ev Event) {
	switch ev.Kind {
	case EventSync:
		next := make(State, len(ev.Snapshot))
		for _, m := range ev.Snapshot {
			next[m.UserID] = Status{Online: true, LastSeen: t.stamp(m.OnlineAt)}
		}
		t.state = next
	case EventJoin:
		t.state[ev.Meta.UserID] = Status{Online: true, LastSeen: t.stamp(ev.Meta.OnlineAt)}
	case EventLeave:
		prev, known := t.state[ev.Meta.UserID]
		seen := prev.LastSeen
		if !known || seen.IsZero() {
			seen = t.stamp(ev.Meta.OnlineAt)
		}
		t.state[ev.Meta.UserID] = Status{Online: false, LastSeen: seen}
	default:
		return
	}
	t.publish()
}

func (t *Tracker) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return t.now()
	}
	return at.UTC()
}

func (t *Tracker) publish() {
	cp := t.state.Clone()
	t.snapMu.Lock()
	t.snap = cp
	t.snapMu.Unlock()

	t.cbMu.Lock()
	fn := t.onChange
	t.cbMu.Unlock()
	if fn != nil {
		fn(cp.Clone())
	}
}
