package inbox

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/composer"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
	"github.com/yungbote/echoworld-backend/internal/services"
)

// Store is what the view reads and writes through. The HTTP client and the
// in-process messaging service both satisfy it.
type Store interface {
	composer.Sender
	ListConversations(ctx context.Context, limit int) ([]*services.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	CountUnread(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID) error
}

type serviceStore struct {
	svc services.MessagingService
}

// NewServiceStore adapts the messaging service for callers that hold the
// identity in their context.
func NewServiceStore(svc services.MessagingService) Store {
	return &serviceStore{svc: svc}
}

func (s *serviceStore) ListConversations(ctx context.Context, limit int) ([]*services.ConversationSummary, error) {
	return s.svc.ListConversations(dbctx.Context{Ctx: ctx}, limit)
}

func (s *serviceStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	return s.svc.ListMessages(dbctx.Context{Ctx: ctx}, conversationID, limit)
}

func (s *serviceStore) CountUnread(ctx context.Context) (int64, error) {
	return s.svc.CountUnread(dbctx.Context{Ctx: ctx}, ctxutil.UserID(ctx))
}

func (s *serviceStore) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	return s.svc.MarkRead(dbctx.Context{Ctx: ctx}, conversationID)
}

func (s *serviceStore) SendMessage(ctx context.Context, conversationID uuid.UUID, content string, meta types.SendMetadata) (*types.Message, error) {
	return s.svc.SendMessage(dbctx.Context{Ctx: ctx}, conversationID, content, meta)
}
