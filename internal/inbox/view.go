package inbox

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/composer"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/services"
)

var ErrNotMounted = errors.New("inbox view is not mounted")

// seenLimit bounds how many delivered message ids the view remembers.
const seenLimit = 1024

type Options struct {
	ConversationLimit int
	MessageLimit      int
	Composer          composer.Options

	// OnChange runs after any state change, from whichever goroutine made it.
	OnChange func()
}

// View is the signed-in user's inbox: the conversation list, the unread
// total and the open conversation with its composer.
type View struct {
	userID  uuid.UUID
	store   Store
	session *realtime.Session
	log     *logger.Logger
	opts    Options

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	epoch         uint64
	activeGen     uint64
	mounted       bool
	conversations []*services.ConversationSummary
	unread        int64
	active        uuid.UUID
	composer      *composer.Composer
	unregister    []func()
	seen          map[uuid.UUID]struct{}
	seenOrder     []uuid.UUID
}

func NewView(userID uuid.UUID, store Store, session *realtime.Session, log *logger.Logger, opts Options) *View {
	return &View{
		userID:  userID,
		store:   store,
		session: session,
		log:     log.With("component", "InboxView", "user_id", userID),
		opts:    opts,
	}
}

// Mount starts the realtime feed and loads the conversation list.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return nil
	}
	if err := v.session.Start(v.userID); err != nil {
		v.mu.Unlock()
		return err
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.epoch++
	v.mounted = true
	v.seen = make(map[uuid.UUID]struct{})
	v.seenOrder = nil
	v.unregister = append(v.unregister,
		v.session.OnMessage(realtime.Listen(v.onMessage)),
		v.session.OnNotification(realtime.Listen(v.onNotification)),
	)
	v.mu.Unlock()
	return v.Refresh(ctx)
}

// Unmount stops the feed. Fetches still in flight are discarded when they land.
func (v *View) Unmount() {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	v.mounted = false
	v.epoch++
	v.activeGen++
	unregister := v.unregister
	v.unregister = nil
	cancel := v.cancel
	c := v.composer
	v.mu.Unlock()

	for _, fn := range unregister {
		fn()
	}
	v.session.Stop()
	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.Wait()
	}
}

// Refresh reloads the conversation list and the unread total.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return ErrNotMounted
	}
	epoch := v.epoch
	v.mu.Unlock()

	convs, err := v.store.ListConversations(ctx, v.opts.ConversationLimit)
	if err != nil {
		return err
	}
	unread, err := v.store.CountUnread(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return nil
	}
	v.conversations = convs
	v.unread = unread
	v.mu.Unlock()
	v.changed()
	return nil
}

// Open makes conversationID the active conversation: it loads the latest
// page, marks it read and creates a fresh composer. A later Open wins over an
// earlier one that is still loading.
func (v *View) Open(ctx context.Context, conversationID uuid.UUID) error {
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return ErrNotMounted
	}
	v.activeGen++
	gen := v.activeGen
	prev := v.composer
	tl := composer.NewTimeline()
	c := composer.New(conversationID, v.userID, v.store, tl, v.log, v.opts.Composer)
	v.active = conversationID
	v.composer = c
	v.mu.Unlock()
	if prev != nil {
		go prev.Wait()
	}

	msgs, err := v.store.ListMessages(ctx, conversationID, v.opts.MessageLimit)
	if err != nil {
		return err
	}
	v.mu.Lock()
	if v.activeGen != gen {
		v.mu.Unlock()
		return nil
	}
	tl.Replace(msgs)
	v.mu.Unlock()

	if err := v.store.MarkRead(ctx, conversationID); err != nil {
		v.log.Warn("mark read failed", "conversation_id", conversationID, "error", err)
	} else {
		v.clearUnread(conversationID)
	}
	v.changed()
	return nil
}

func (v *View) clearUnread(conversationID uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, sum := range v.conversations {
		if sum.ID == conversationID {
			v.unread -= sum.UnreadCount
			if v.unread < 0 {
				v.unread = 0
			}
			sum.UnreadCount = 0
		}
	}
}

func (v *View) Conversations() []services.ConversationSummary {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]services.ConversationSummary, 0, len(v.conversations))
	for _, sum := range v.conversations {
		out = append(out, *sum)
	}
	return out
}

func (v *View) UnreadTotal() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread
}

// Active returns the open conversation and its composer, or uuid.Nil and nil.
func (v *View) Active() (uuid.UUID, *composer.Composer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active, v.composer
}

func (v *View) Messages() []composer.UiMessage {
	_, c := v.Active()
	if c == nil {
		return nil
	}
	return c.Timeline().Items()
}

func (v *View) onMessage(rec realtime.MessageRecord) {
	msg, err := rec.ToMessage()
	if err != nil {
		return
	}
	v.mu.Lock()
	if !v.mounted {
		v.mu.Unlock()
		return
	}
	isActive := msg.ConversationID == v.active && v.composer != nil
	if isActive {
		v.composer.Timeline().Ingest(msg)
	}
	if !v.markSeenLocked(msg.ID) {
		// Redelivery of a row already counted.
		v.mu.Unlock()
		return
	}
	fromPeer := msg.SenderID != v.userID

	idx := -1
	for i, sum := range v.conversations {
		if sum.ID == msg.ConversationID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		sum := v.conversations[idx]
		sum.LastMessage = msg
		sum.UpdatedAt = msg.CreatedAt
		if fromPeer && !isActive {
			sum.UnreadCount++
			v.unread++
		}
		copy(v.conversations[1:idx+1], v.conversations[:idx])
		v.conversations[0] = sum
	}
	ctx := v.ctx
	v.mu.Unlock()

	switch {
	case idx < 0:
		// First message of a conversation the list has not seen yet.
		go func() {
			if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
				v.log.Warn("inbox refresh failed", "error", err)
			}
		}()
	case isActive && fromPeer:
		go func() {
			if err := v.store.MarkRead(ctx, msg.ConversationID); err != nil && ctx.Err() == nil {
				v.log.Warn("mark read failed", "conversation_id", msg.ConversationID, "error", err)
			}
		}()
	}
	v.changed()
}

// markSeenLocked reports whether id is delivered for the first time.
func (v *View) markSeenLocked(id uuid.UUID) bool {
	if _, ok := v.seen[id]; ok {
		return false
	}
	if len(v.seenOrder) >= seenLimit {
		delete(v.seen, v.seenOrder[0])
		v.seenOrder = v.seenOrder[1:]
	}
	v.seen[id] = struct{}{}
	v.seenOrder = append(v.seenOrder, id)
	return true
}

func (v *View) onNotification(rec realtime.NotificationRecord) {
	v.log.Debug("notification received", "kind", rec.Kind, "conversation_id", rec.ConversationID)
}

func (v *View) changed() {
	if v.opts.OnChange != nil {
		v.opts.OnChange()
	}
}

// SendTo is a shorthand for submitting through the active composer.
func (v *View) SendTo(ctx context.Context, conversationID uuid.UUID, content string) (string, error) {
	active, c := v.Active()
	if c == nil || active != conversationID {
		if err := v.Open(ctx, conversationID); err != nil {
			return "", err
		}
		_, c = v.Active()
	}
	return c.Submit(ctx, content)
}
