package realtime

import (
	"strings"

	"github.com/google/uuid"
)

type Event string

const (
	EventMessageInsert      Event = "message_insert"
	EventNotificationInsert Event = "notification_insert"
	EventPresenceState      Event = "presence_state"
)

// Envelope is what travels over the hub, the bus and the SSE stream.
type Envelope struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

const (
	messagesPrefix      = "messages:"
	notificationsPrefix = "notifications:"
)

func MessagesTopic(userID uuid.UUID) string      { return messagesPrefix + userID.String() }
func NotificationsTopic(userID uuid.UUID) string { return notificationsPrefix + userID.String() }

// TopicUser extracts the user id a per-user topic belongs to.
func TopicUser(topic string) (uuid.UUID, bool) {
	for _, prefix := range []string{messagesPrefix, notificationsPrefix} {
		if rest, ok := strings.CutPrefix(topic, prefix); ok {
			id, err := uuid.Parse(rest)
			return id, err == nil
		}
	}
	return uuid.Nil, false
}
