package domain

import (
	"github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/domain/user"
)

type Profile = user.Profile

type Conversation = messaging.Conversation
type ConversationKind = messaging.ConversationKind
type ConversationMember = messaging.ConversationMember
type MemberRole = messaging.MemberRole
type Message = messaging.Message
type SendMetadata = messaging.SendMetadata
type Notification = messaging.Notification
type NotificationKind = messaging.NotificationKind

const (
	KindDirect = messaging.KindDirect
	KindGroup  = messaging.KindGroup

	RoleOwner  = messaging.RoleOwner
	RoleMember = messaging.RoleMember

	NotificationMessage = messaging.NotificationMessage
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&user.Profile{},
		&messaging.Conversation{},
		&messaging.ConversationMember{},
		&messaging.Message{},
		&messaging.Notification{},
	}
}
