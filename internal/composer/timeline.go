package composer

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/echoworld-backend/internal/domain"
)

type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// ParentPreview is the small quote rendered above a reply.
type ParentPreview struct {
	ID       uuid.UUID `json:"id"`
	SenderID uuid.UUID `json:"sender_id"`
	Content  string    `json:"content"`
}

func previewOf(m *types.Message) *ParentPreview {
	if m == nil {
		return nil
	}
	return &ParentPreview{ID: m.ID, SenderID: m.SenderID, Content: m.Content}
}

// UiMessage is a message as the conversation view renders it.
type UiMessage struct {
	types.Message
	Status        Status         `json:"status"`
	ClientID      string         `json:"client_id,omitempty"`
	Optimistic    bool           `json:"optimistic"`
	ParentMessage *ParentPreview `json:"parent_message,omitempty"`
	Error         string         `json:"error,omitempty"`
}

func fromPersisted(m *types.Message) UiMessage {
	return UiMessage{
		Message:  *m,
		Status:   StatusSent,
		ClientID: m.CorrelationID(),
	}
}

// Timeline is the visible message list of one conversation. Entries are
// matched by client id first and by message id second, so confirmations and
// realtime echoes can arrive in any order without duplicating a row.
type Timeline struct {
	mu    sync.Mutex
	items []UiMessage
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) indexLocked(clientID string, id uuid.UUID) int {
	if clientID != "" {
		for i := range t.items {
			if t.items[i].ClientID == clientID {
				return i
			}
		}
	}
	if id != uuid.Nil {
		for i := range t.items {
			if t.items[i].ID == id {
				return i
			}
		}
	}
	return -1
}

// AddOptimistic appends a sending entry. A second call for the same client id
// flips the existing entry back to sending instead of appending.
func (t *Timeline) AddOptimistic(ui UiMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ui.Status = StatusSending
	ui.Optimistic = true
	ui.Error = ""
	if i := t.indexLocked(ui.ClientID, uuid.Nil); i >= 0 {
		if t.items[i].Status == StatusSent {
			return false
		}
		t.items[i].Status = StatusSending
		t.items[i].Error = ""
		return false
	}
	t.items = append(t.items, ui)
	return true
}

// Confirm swaps the optimistic entry for the persisted row. It reports false
// when the row was already confirmed.
func (t *Timeline) Confirm(clientID string, msg *types.Message) bool {
	if msg == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settleLocked(clientID, msg)
}

// Ingest applies a realtime copy of a persisted row.
func (t *Timeline) Ingest(msg *types.Message) bool {
	if msg == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settleLocked(msg.CorrelationID(), msg)
}

func (t *Timeline) settleLocked(clientID string, msg *types.Message) bool {
	i := t.indexLocked(clientID, msg.ID)
	if i < 0 {
		// A row may already be present by id under a different client id.
		if i = t.indexLocked("", msg.ID); i >= 0 {
			return false
		}
		ui := fromPersisted(msg)
		if clientID != "" {
			ui.ClientID = clientID
		}
		t.items = append(t.items, ui)
		return true
	}
	cur := t.items[i]
	if cur.Status == StatusSent && !cur.Optimistic {
		return false
	}
	next := fromPersisted(msg)
	if next.ClientID == "" {
		next.ClientID = cur.ClientID
	}
	next.ParentMessage = cur.ParentMessage
	t.items[i] = next
	return true
}

// Fail marks a sending entry failed. Settled entries are left alone.
func (t *Timeline) Fail(clientID string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(clientID, uuid.Nil)
	if i < 0 || t.items[i].Status != StatusSending {
		return false
	}
	t.items[i].Status = StatusFailed
	if err != nil {
		t.items[i].Error = err.Error()
	}
	return true
}

// Replace installs a freshly loaded page. Entries the page does not contain
// survive when they are still unsettled (kept at the tail) or when they are
// persisted rows at least as new as the page's newest row, since those landed
// while the page was loading.
func (t *Timeline) Replace(msgs []*types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]UiMessage, 0, len(msgs)+len(t.items))
	seen := map[string]bool{}
	byID := map[uuid.UUID]bool{}
	var newest time.Time
	for _, m := range msgs {
		if m == nil {
			continue
		}
		ui := fromPersisted(m)
		if ui.ClientID != "" {
			seen[ui.ClientID] = true
		}
		byID[m.ID] = true
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
		next = append(next, ui)
	}
	var landed, pending []UiMessage
	for _, cur := range t.items {
		if (cur.ClientID != "" && seen[cur.ClientID]) || (cur.ID != uuid.Nil && byID[cur.ID]) {
			continue
		}
		if !cur.Optimistic || cur.Status == StatusSent {
			if !cur.CreatedAt.Before(newest) {
				landed = append(landed, cur)
			}
			continue
		}
		pending = append(pending, cur)
	}
	next = append(next, landed...)
	sort.SliceStable(next, func(i, j int) bool { return next[i].CreatedAt.Before(next[j].CreatedAt) })
	t.items = append(next, pending...)
}

// Get returns the entry for a client id.
func (t *Timeline) Get(clientID string) (UiMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(clientID, uuid.Nil); i >= 0 {
		return t.items[i], true
	}
	return UiMessage{}, false
}

func (t *Timeline) Items() []UiMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]UiMessage, len(t.items))
	copy(out, t.items)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

func optimisticMessage(conversationID, senderID uuid.UUID, clientID, content string, parent *types.Message, at time.Time) UiMessage {
	ui := UiMessage{
		Message: types.Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			ClientID:       clientID,
			CreatedAt:      at,
		},
		ClientID:      clientID,
		Optimistic:    true,
		Status:        StatusSending,
		ParentMessage: previewOf(parent),
	}
	if parent != nil {
		pid := parent.ID
		ui.ParentID = &pid
	}
	return ui
}
