package messaging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationMessage NotificationKind = "message"
)

type Notification struct {
	ID      uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID        `gorm:"type:uuid;not null;index:idx_notification_user_created,priority:1" json:"user_id"`
	ActorID uuid.UUID        `gorm:"type:uuid;not null" json:"actor_id"`
	Kind    NotificationKind `gorm:"column:kind;type:text;not null;index" json:"kind"`

	ConversationID *uuid.UUID     `gorm:"type:uuid;column:conversation_id;index" json:"conversation_id,omitempty"`
	MessageID      *uuid.UUID     `gorm:"type:uuid;column:message_id" json:"message_id,omitempty"`
	Payload        datatypes.JSON `gorm:"type:jsonb;column:payload;not null;default:'{}'" json:"payload,omitempty"`

	ReadAt    *time.Time `gorm:"column:read_at;index" json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;index:idx_notification_user_created,priority:2" json:"created_at"`
}

func (Notification) TableName() string { return "notification" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
