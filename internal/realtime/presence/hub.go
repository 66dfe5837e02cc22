package presence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

const (
	DefaultTTL       = 90 * time.Second
	subscriberBuffer = 64
)

// Subscription is one listener on a presence channel, keyed by the subscriber's user id.
type Subscription struct {
	ID      uuid.UUID
	Channel string
	Key     uuid.UUID

	events    chan Event
	closeOnce sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.events }

type entry struct {
	meta    Meta
	expires time.Time
	refs    map[*Subscription]struct{}
}

type channelState struct {
	subs     map[*Subscription]struct{}
	entries  map[uuid.UUID]*entry
	lastSeen map[uuid.UUID]time.Time
}

// Hub is an in-process presence channel registry. Entries that are not re-tracked
// within the TTL are expired by the sweeper and announced as leaves.
type Hub struct {
	mu       sync.Mutex
	log      *logger.Logger
	ttl      time.Duration
	now      func() time.Time
	channels map[string]*channelState
}

func NewHub(log *logger.Logger, ttl time.Duration) *Hub {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Hub{
		log:      log.With("component", "PresenceHub"),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		channels: make(map[string]*channelState),
	}
}

func (h *Hub) channelLocked(name string) *channelState {
	ch, ok := h.channels[name]
	if !ok {
		ch = &channelState{
			subs:     make(map[*Subscription]struct{}),
			entries:  make(map[uuid.UUID]*entry),
			lastSeen: make(map[uuid.UUID]time.Time),
		}
		h.channels[name] = ch
	}
	return ch
}

// Subscribe joins channel as key. The first event on the subscription is a sync snapshot.
func (h *Hub) Subscribe(channel string, key uuid.UUID) *Subscription {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	sub := &Subscription{
		ID:      uuid.New(),
		Channel: channel,
		Key:     key,
		events:  make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ch := h.channelLocked(channel)
	ch.subs[sub] = struct{}{}
	sub.events <- Event{Kind: EventSync, Channel: channel, Snapshot: snapshotLocked(ch)}
	h.log.Debug("presence subscribed", "channel", channel, "user_id", key)
	return sub
}

// Track stores or refreshes the subscriber's meta and announces it as a join.
func (h *Hub) Track(sub *Subscription, meta Meta) {
	if sub == nil {
		return
	}
	if meta.UserID == uuid.Nil {
		meta.UserID = sub.Key
	}
	if meta.OnlineAt.IsZero() {
		meta.OnlineAt = h.now()
	}
	meta.OnlineAt = meta.OnlineAt.UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[sub.Channel]
	if !ok {
		return
	}
	if _, ok := ch.subs[sub]; !ok {
		return
	}
	e, ok := ch.entries[meta.UserID]
	if !ok {
		e = &entry{refs: make(map[*Subscription]struct{})}
		ch.entries[meta.UserID] = e
	}
	e.meta = meta
	e.expires = h.now().Add(h.ttl)
	e.refs[sub] = struct{}{}
	delete(ch.lastSeen, meta.UserID)
	h.broadcastLocked(ch, Event{Kind: EventJoin, Channel: sub.Channel, Meta: meta})
}

// Unsubscribe removes the subscription. When it held the last reference to its
// user's entry, a leave is announced.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if ch, ok := h.channels[sub.Channel]; ok {
			delete(ch.subs, sub)
			for uid, e := range ch.entries {
				if _, held := e.refs[sub]; !held {
					continue
				}
				delete(e.refs, sub)
				if len(e.refs) == 0 {
					h.leaveLocked(ch, sub.Channel, uid, e)
				}
			}
		}
		close(sub.events)
		h.log.Debug("presence unsubscribed", "channel", sub.Channel, "user_id", sub.Key)
	})
}

func (h *Hub) leaveLocked(ch *channelState, channel string, uid uuid.UUID, e *entry) {
	delete(ch.entries, uid)
	ch.lastSeen[uid] = e.meta.OnlineAt
	h.broadcastLocked(ch, Event{Kind: EventLeave, Channel: channel, Meta: e.meta})
}

func (h *Hub) broadcastLocked(ch *channelState, ev Event) {
	for sub := range ch.subs {
		select {
		case sub.events <- ev:
		default:
			h.log.Warn("Dropping presence event; subscriber buffer full", "subscription_id", sub.ID, "kind", ev.Kind)
		}
	}
}

// Sweep expires stale entries once; StartSweeper calls it periodically.
func (h *Hub) Sweep() int {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	expired := 0
	for name, ch := range h.channels {
		for uid, e := range ch.entries {
			if now.After(e.expires) {
				h.leaveLocked(ch, name, uid, e)
				expired++
			}
		}
	}
	return expired
}

func (h *Hub) StartSweeper(ctx context.Context) {
	interval := h.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.Sweep(); n > 0 {
					h.log.Debug("presence entries expired", "count", n)
				}
			}
		}
	}()
}

// State reports online entries plus users that left since the process started.
func (h *Hub) State(channel string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := State{}
	ch, ok := h.channels[channel]
	if !ok {
		return out
	}
	for uid, seen := range ch.lastSeen {
		out[uid] = Status{Online: false, LastSeen: seen}
	}
	for uid, e := range ch.entries {
		out[uid] = Status{Online: true, LastSeen: e.meta.OnlineAt}
	}
	return out
}

func snapshotLocked(ch *channelState) []Meta {
	out := make([]Meta, 0, len(ch.entries))
	for _, e := range ch.entries {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out
}
