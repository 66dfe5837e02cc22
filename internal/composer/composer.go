package composer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

const (
	DefaultMaxPending = 3
	maxContentRunes   = 4000
)

var (
	ErrTooManyPending = errors.New("too many messages are still sending")
	ErrUnknownClient  = errors.New("no failed message with that client id")
	ErrNotFailed      = errors.New("message is not in a failed state")
)

// Sender persists a message. Implementations must treat a repeated client id
// as the same message.
type Sender interface {
	SendMessage(ctx context.Context, conversationID uuid.UUID, content string, meta types.SendMetadata) (*types.Message, error)
}

type Options struct {
	MaxPending int

	// Callbacks run on the goroutine that settled the send.
	OnOptimisticSend func(UiMessage)
	OnConfirmSent    func(clientID string, msg *types.Message)
	OnSendFailed     func(clientID string, err error)

	NewClientID func() string
	Now         func() time.Time
}

type draft struct {
	content string
	parent  *uuid.UUID
}

// Composer owns the outgoing side of one conversation. Submissions are
// optimistic; a failed send is only ever retried by the caller.
type Composer struct {
	conversationID uuid.UUID
	senderID       uuid.UUID
	sender         Sender
	timeline       *Timeline
	log            *logger.Logger
	opts           Options

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	replyTo *types.Message
	drafts  map[string]draft
	pending int
}

func New(conversationID, senderID uuid.UUID, sender Sender, timeline *Timeline, log *logger.Logger, opts Options) *Composer {
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	if opts.NewClientID == nil {
		opts.NewClientID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if timeline == nil {
		timeline = NewTimeline()
	}
	return &Composer{
		conversationID: conversationID,
		senderID:       senderID,
		sender:         sender,
		timeline:       timeline,
		log:            log.With("component", "Composer", "conversation_id", conversationID),
		opts:           opts,
		sem:            semaphore.NewWeighted(int64(opts.MaxPending)),
		drafts:         map[string]draft{},
	}
}

func (c *Composer) Timeline() *Timeline { return c.timeline }

func (c *Composer) ConversationID() uuid.UUID { return c.conversationID }

// SetReplyTo attaches msg to the next submission. nil clears it.
func (c *Composer) SetReplyTo(msg *types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replyTo = msg
}

func (c *Composer) ReplyTo() *types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// Pending reports how many sends are in flight.
func (c *Composer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// CanSubmit is false while the pending cap is reached.
func (c *Composer) CanSubmit() bool {
	return c.Pending() < c.opts.MaxPending
}

// Submit appends an optimistic entry and dispatches the send. The reply
// target is consumed here, not on success.
func (c *Composer) Submit(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ValidationError("Submit", "message content is empty")
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return "", domain.ValidationError("Submit", "message content is too long")
	}
	if !c.sem.TryAcquire(1) {
		return "", ErrTooManyPending
	}

	clientID := c.opts.NewClientID()
	c.mu.Lock()
	parent := c.replyTo
	c.replyTo = nil
	d := draft{content: content}
	if parent != nil {
		pid := parent.ID
		d.parent = &pid
	}
	c.drafts[clientID] = d
	c.pending++
	c.mu.Unlock()

	ui := optimisticMessage(c.conversationID, c.senderID, clientID, content, parent, c.opts.Now())
	c.timeline.AddOptimistic(ui)
	if c.opts.OnOptimisticSend != nil {
		c.opts.OnOptimisticSend(ui)
	}
	c.dispatch(ctx, clientID, d)
	return clientID, nil
}

// Retry resubmits a failed entry with its original client id.
func (c *Composer) Retry(ctx context.Context, clientID string) error {
	c.mu.Lock()
	d, ok := c.drafts[clientID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownClient
	}
	cur, ok := c.timeline.Get(clientID)
	if !ok {
		return ErrUnknownClient
	}
	if cur.Status != StatusFailed {
		return ErrNotFailed
	}
	if !c.sem.TryAcquire(1) {
		return ErrTooManyPending
	}
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()

	c.timeline.AddOptimistic(cur)
	if c.opts.OnOptimisticSend != nil {
		cur.Status = StatusSending
		cur.Error = ""
		c.opts.OnOptimisticSend(cur)
	}
	c.dispatch(ctx, clientID, d)
	return nil
}

func (c *Composer) dispatch(ctx context.Context, clientID string, d draft) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		defer func() {
			c.mu.Lock()
			c.pending--
			c.mu.Unlock()
		}()

		msg, err := c.sender.SendMessage(ctx, c.conversationID, d.content, types.SendMetadata{
			ClientID: clientID,
			ParentID: d.parent,
		})
		if err == nil && msg == nil {
			err = errors.New("send returned no message")
		}
		if err != nil {
			c.log.Warn("send failed", "client_id", clientID, "error", err)
			c.timeline.Fail(clientID, err)
			if c.opts.OnSendFailed != nil {
				c.opts.OnSendFailed(clientID, err)
			}
			return
		}

		c.mu.Lock()
		delete(c.drafts, clientID)
		c.mu.Unlock()
		c.timeline.Confirm(clientID, msg)
		if c.opts.OnConfirmSent != nil {
			c.opts.OnConfirmSent(clientID, msg)
		}
	}()
}

// Wait blocks until every dispatched send has settled.
func (c *Composer) Wait() {
	c.wg.Wait()
}
