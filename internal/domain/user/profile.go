package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile holds the public display attributes of an account.
type Profile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Handle      string    `gorm:"column:handle;not null;uniqueIndex" json:"handle"`
	DisplayName string    `gorm:"column:display_name;not null;default:''" json:"display_name"`
	AvatarURL   string    `gorm:"column:avatar_url;not null;default:''" json:"avatar_url"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profile" }

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
