package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/realtime"
)

const broadcastTimeout = 5 * time.Second

// Broadcaster is satisfied by *realtime.Publisher and *realtime.Session.
type Broadcaster interface {
	Broadcast(ctx context.Context, rec realtime.Record)
}

// MessagingNotifier pushes persisted rows to the realtime adapter.
type MessagingNotifier interface {
	MessageInserted(ctx context.Context, msg *types.Message, audience []uuid.UUID)
	NotificationsInserted(ctx context.Context, rows []*types.Notification)
}

type messagingNotifier struct {
	b Broadcaster
}

func NewMessagingNotifier(b Broadcaster) MessagingNotifier {
	return &messagingNotifier{b: b}
}

// detach keeps the broadcast alive when the request context is cancelled right after the write.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
}

func (n *messagingNotifier) MessageInserted(ctx context.Context, msg *types.Message, audience []uuid.UUID) {
	if n == nil || n.b == nil || msg == nil || len(audience) == 0 {
		return
	}
	bctx, cancel := detach(ctx)
	defer cancel()
	n.b.Broadcast(bctx, realtime.NewMessageRecord(msg, audience))
}

func (n *messagingNotifier) NotificationsInserted(ctx context.Context, rows []*types.Notification) {
	if n == nil || n.b == nil || len(rows) == 0 {
		return
	}
	bctx, cancel := detach(ctx)
	defer cancel()
	for _, row := range rows {
		if row == nil || row.UserID == uuid.Nil {
			continue
		}
		n.b.Broadcast(bctx, realtime.NewNotificationRecord(row))
	}
}
