package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/echoworld-backend/internal/domain"
)

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, handle string) *types.Profile {
	tb.Helper()
	p := &types.Profile{
		ID:          uuid.New(),
		Handle:      handle + "-" + uuid.NewString()[:8],
		DisplayName: handle,
		AvatarURL:   "https://example.com/" + handle + ".png",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

// SeedConversation creates a conversation with the given members; the first member owns it.
func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, kind types.ConversationKind, members ...uuid.UUID) *types.Conversation {
	tb.Helper()
	if len(members) == 0 {
		tb.Fatalf("seed conversation: no members")
	}
	c := &types.Conversation{
		ID:        uuid.New(),
		Kind:      kind,
		CreatedBy: members[0],
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	for i, uid := range members {
		role := types.RoleMember
		if i == 0 {
			role = types.RoleOwner
		}
		m := &types.ConversationMember{
			ConversationID: c.ID,
			UserID:         uid,
			Role:           role,
			JoinedAt:       time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(m).Error; err != nil {
			tb.Fatalf("seed member: %v", err)
		}
	}
	return c
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, conversationID, senderID uuid.UUID, content string, at time.Time) *types.Message {
	tb.Helper()
	m := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at.UTC(),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}
