package presence

import (
	"time"

	"github.com/google/uuid"
)

// DefaultChannel is the channel every signed-in user tracks on.
const DefaultChannel = "online"

// Meta is what a user announces when tracking.
type Meta struct {
	UserID   uuid.UUID `json:"user_id"`
	OnlineAt time.Time `json:"online_at"`
}

type EventKind string

const (
	EventSync  EventKind = "sync"
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

// Event is delivered to subscribers. Sync carries the full snapshot; join and leave carry one meta.
type Event struct {
	Kind     EventKind `json:"kind"`
	Channel  string    `json:"channel"`
	Snapshot []Meta    `json:"snapshot,omitempty"`
	Meta     Meta      `json:"meta"`
}

type Status struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// State maps user id to presence.
type State map[uuid.UUID]Status

func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// OnlineCount counts users currently online.
func (s State) OnlineCount() int {
	n := 0
	for _, st := range s {
		if st.Online {
			n++
		}
	}
	return n
}
