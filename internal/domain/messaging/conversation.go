package messaging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

type Conversation struct {
	ID   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Kind ConversationKind `gorm:"column:kind;type:text;not null;index" json:"kind"`

	Title *string `gorm:"column:title" json:"title,omitempty"`
	// OriginReference points at whatever prompted the conversation, usually an echo id.
	OriginReference *string `gorm:"column:origin_reference;index" json:"origin_reference,omitempty"`

	CreatedBy uuid.UUID `gorm:"type:uuid;column:created_by;not null;index" json:"created_by"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

type ConversationMember struct {
	ConversationID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID  `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	Role           MemberRole `gorm:"column:role;type:text;not null;default:'member'" json:"role"`
	JoinedAt       time.Time  `gorm:"column:joined_at;not null" json:"joined_at"`
	// nil means the member has never read the conversation.
	LastReadAt *time.Time `gorm:"column:last_read_at" json:"last_read_at,omitempty"`
	Muted      bool       `gorm:"column:muted;not null;default:false" json:"muted"`
}

func (ConversationMember) TableName() string { return "conversation_member" }

// ReadSince is the watermark unread counting starts from.
func (m *ConversationMember) ReadSince() time.Time {
	if m == nil || m.LastReadAt == nil {
		return time.Unix(0, 0).UTC()
	}
	return m.LastReadAt.UTC()
}

func (m *ConversationMember) BeforeCreate(tx *gorm.DB) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = tx.NowFunc()
	}
	if m.Role == "" {
		m.Role = RoleMember
	}
	return nil
}
