package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

var ErrNoUser = errors.New("realtime session requires a user id")

// Session owns one user's subscription to their message and notification topics.
// Listeners run one at a time on the session's pump goroutine.
type Session struct {
	hub *Hub
	pub *Publisher
	log *logger.Logger

	mu     sync.Mutex
	userID uuid.UUID
	client *Client

	messages      listenerSet[MessageRecord]
	notifications listenerSet[NotificationRecord]
}

func NewSession(hub *Hub, pub *Publisher, log *logger.Logger) *Session {
	return &Session{
		hub: hub,
		pub: pub,
		log: log.With("component", "RealtimeSession"),
	}
}

// Start subscribes for userID. Starting again for the same user is a no-op;
// a different user replaces the previous subscription.
func (s *Session) Start(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return ErrNoUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.userID == userID {
		return nil
	}
	s.teardownLocked()

	client := s.hub.NewClient(userID)
	s.hub.Subscribe(client, MessagesTopic(userID))
	s.hub.Subscribe(client, NotificationsTopic(userID))
	s.client = client
	s.userID = userID

	go s.pump(client, userID)
	s.log.Debug("realtime session started", "user_id", userID, "client_id", client.ID)
	return nil
}

// Stop releases the subscription. Safe to call at any time.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if s.client == nil {
		return
	}
	s.hub.CloseClient(s.client)
	s.log.Debug("realtime session stopped", "user_id", s.userID, "client_id", s.client.ID)
	s.client = nil
	s.userID = uuid.Nil
}

// UserID is the user the session is started for, or uuid.Nil.
func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) OnMessage(l *Listener[MessageRecord]) func() {
	return s.messages.add(l)
}

func (s *Session) OnNotification(l *Listener[NotificationRecord]) func() {
	return s.notifications.add(l)
}

func (s *Session) Broadcast(ctx context.Context, rec Record) {
	s.pub.Broadcast(ctx, rec)
}

func (s *Session) current(client *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client == client
}

func (s *Session) pump(client *Client, userID uuid.UUID) {
	for {
		select {
		case <-client.done:
			return
		case env, ok := <-client.Outbound:
			if !ok || !s.current(client) {
				return
			}
			s.dispatch(env, userID)
		}
	}
}

func (s *Session) dispatch(env Envelope, userID uuid.UUID) {
	switch env.Event {
	case EventMessageInsert:
		var rec MessageRecord
		err := decodeData(env.Data, &rec)
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			s.drop(env, err)
			return
		}
		s.messages.dispatch(rec)
	case EventNotificationInsert:
		var rec NotificationRecord
		err := decodeData(env.Data, &rec)
		if err == nil {
			err = rec.ValidateFor(userID)
		}
		if err != nil {
			s.drop(env, err)
			return
		}
		s.notifications.dispatch(rec)
	default:
		s.drop(env, ErrMalformedRecord)
	}
}

func (s *Session) drop(env Envelope, err error) {
	observability.Current().IncRealtimeDropped("malformed")
	s.log.Debug("dropping realtime record", "topic", env.Channel, "event", env.Event, "error", err)
}
