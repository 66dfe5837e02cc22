package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payload keys written by the send path.
const (
	PayloadClientID = "client_id"
	PayloadParentID = "parent_id"
)

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_message_conversation_created,priority:1" json:"conversation_id"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null;index;index:idx_message_sender_client,unique,where:client_id <> '',priority:1" json:"sender_id"`

	Content  string     `gorm:"column:content;type:text;not null;default:''" json:"content"`
	ParentID *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`

	// ClientID is the sender-generated idempotency key; a resubmit with the same key resolves to this row.
	ClientID string         `gorm:"column:client_id;type:text;not null;default:'';index:idx_message_sender_client,unique,priority:2" json:"client_id,omitempty"`
	Payload  datatypes.JSON `gorm:"type:jsonb;column:payload;not null;default:'{}'" json:"payload,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index:idx_message_conversation_created,priority:2" json:"created_at"`
	EditedAt  *time.Time     `gorm:"column:edited_at" json:"edited_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Message) TableName() string { return "message" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// PayloadMap decodes the free-form payload. A malformed payload yields an empty map.
func (m *Message) PayloadMap() map[string]any {
	out := map[string]any{}
	if m == nil || len(m.Payload) == 0 {
		return out
	}
	_ = json.Unmarshal(m.Payload, &out)
	return out
}

// CorrelationID returns the client id from the column, falling back to the payload.
func (m *Message) CorrelationID() string {
	if m == nil {
		return ""
	}
	if m.ClientID != "" {
		return m.ClientID
	}
	if v, ok := m.PayloadMap()[PayloadClientID].(string); ok {
		return v
	}
	return ""
}

// SendMetadata is what a caller attaches to an outgoing message.
type SendMetadata struct {
	ClientID string         `json:"client_id,omitempty"`
	ParentID *uuid.UUID     `json:"parent_id,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// BuildPayload merges the extra metadata with the idempotency and reply keys.
func (md SendMetadata) BuildPayload() (datatypes.JSON, error) {
	payload := make(map[string]any, len(md.Extra)+2)
	for k, v := range md.Extra {
		payload[k] = v
	}
	if md.ClientID != "" {
		payload[PayloadClientID] = md.ClientID
	}
	if md.ParentID != nil && *md.ParentID != uuid.Nil {
		payload[PayloadParentID] = md.ParentID.String()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
