package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/echoworld-backend/internal/domain"
)

var ErrMalformedRecord = errors.New("malformed realtime record")

// Record is anything the publisher can route.
type Record interface {
	Event() Event
	Topics() []string
}

// MessageRecord is the wire projection of a persisted message.
type MessageRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Content        string         `json:"content"`
	ParentID       string         `json:"parent_id,omitempty"`
	ClientID       string         `json:"client_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      string         `json:"created_at"`
	EditedAt       string         `json:"edited_at,omitempty"`

	// Audience is the set of users whose message topic receives the record.
	Audience []uuid.UUID `json:"-"`
}

func NewMessageRecord(m *types.Message, audience []uuid.UUID) MessageRecord {
	rec := MessageRecord{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Content:        m.Content,
		ClientID:       m.CorrelationID(),
		Payload:        m.PayloadMap(),
		CreatedAt:      formatTime(m.CreatedAt),
		Audience:       audience,
	}
	if m.ParentID != nil {
		rec.ParentID = m.ParentID.String()
	}
	if m.EditedAt != nil {
		rec.EditedAt = formatTime(*m.EditedAt)
	}
	return rec
}

func (r MessageRecord) Event() Event { return EventMessageInsert }

func (r MessageRecord) Topics() []string {
	out := make([]string, 0, len(r.Audience))
	for _, uid := range r.Audience {
		if uid != uuid.Nil {
			out = append(out, MessagesTopic(uid))
		}
	}
	return out
}

func (r MessageRecord) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	case strings.TrimSpace(r.ConversationID) == "":
		return fmt.Errorf("%w: missing conversation_id", ErrMalformedRecord)
	case strings.TrimSpace(r.SenderID) == "":
		return fmt.Errorf("%w: missing sender_id", ErrMalformedRecord)
	case strings.TrimSpace(r.CreatedAt) == "":
		return fmt.Errorf("%w: missing created_at", ErrMalformedRecord)
	}
	return nil
}

// ToMessage converts the record back into the domain shape.
func (r MessageRecord) ToMessage() (*types.Message, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrMalformedRecord, err)
	}
	convID, err := uuid.Parse(r.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation_id: %v", ErrMalformedRecord, err)
	}
	senderID, err := uuid.Parse(r.SenderID)
	if err != nil {
		return nil, fmt.Errorf("%w: sender_id: %v", ErrMalformedRecord, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrMalformedRecord, err)
	}
	m := &types.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        r.Content,
		ClientID:       r.ClientID,
		CreatedAt:      createdAt,
	}
	if r.ParentID != "" {
		if pid, err := uuid.Parse(r.ParentID); err == nil {
			m.ParentID = &pid
		}
	}
	if r.EditedAt != "" {
		if t, err := parseTime(r.EditedAt); err == nil {
			m.EditedAt = &t
		}
	}
	if len(r.Payload) > 0 {
		if raw, err := json.Marshal(r.Payload); err == nil {
			m.Payload = datatypes.JSON(raw)
		}
	}
	return m, nil
}

// NotificationRecord is the wire projection of a notification row.
type NotificationRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	ActorID        string         `json:"actor_id"`
	Kind           string         `json:"kind"`
	ConversationID string         `json:"conversation_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      string         `json:"created_at"`
	ReadAt         string         `json:"read_at,omitempty"`
}

func NewNotificationRecord(n *types.Notification) NotificationRecord {
	rec := NotificationRecord{
		ID:        n.ID.String(),
		UserID:    n.UserID.String(),
		ActorID:   n.ActorID.String(),
		Kind:      string(n.Kind),
		CreatedAt: formatTime(n.CreatedAt),
	}
	if n.ConversationID != nil {
		rec.ConversationID = n.ConversationID.String()
	}
	if n.MessageID != nil {
		rec.MessageID = n.MessageID.String()
	}
	if n.ReadAt != nil {
		rec.ReadAt = formatTime(*n.ReadAt)
	}
	if len(n.Payload) > 0 {
		payload := map[string]any{}
		if err := json.Unmarshal(n.Payload, &payload); err == nil && len(payload) > 0 {
			rec.Payload = payload
		}
	}
	return rec
}

func (r NotificationRecord) Event() Event { return EventNotificationInsert }

func (r NotificationRecord) Topics() []string {
	uid, err := uuid.Parse(r.UserID)
	if err != nil || uid == uuid.Nil {
		return nil
	}
	return []string{NotificationsTopic(uid)}
}

// ValidateFor rejects records missing ids or timestamp and records addressed to someone else.
func (r NotificationRecord) ValidateFor(userID uuid.UUID) error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: missing user_id", ErrMalformedRecord)
	case strings.TrimSpace(r.CreatedAt) == "":
		return fmt.Errorf("%w: missing created_at", ErrMalformedRecord)
	}
	if !strings.EqualFold(strings.TrimSpace(r.UserID), userID.String()) {
		return fmt.Errorf("%w: notification for another user", ErrMalformedRecord)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// decodeData turns an envelope payload into dst. In-process envelopes carry the
// record value itself; envelopes that crossed the bus carry decoded JSON.
func decodeData(data any, dst any) error {
	if data == nil {
		return fmt.Errorf("%w: empty data", ErrMalformedRecord)
	}
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
