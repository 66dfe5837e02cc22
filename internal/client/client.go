package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/inbox"
	"github.com/yungbote/echoworld-backend/internal/platform/httpx"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
	"github.com/yungbote/echoworld-backend/internal/services"
)

var _ inbox.Store = (*Client)(nil)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the EchoWorld HTTP API as one signed-in user.
type Client struct {
	log        *logger.Logger
	baseURL    string
	token      string
	httpClient *http.Client
	stream     *http.Client
	maxRetries int
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing base url")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("bad base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		log:        log.With("service", "EchoWorldClient"),
		baseURL:    base,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
		stream:     &http.Client{},
		maxRetries: retries,
	}, nil
}

type apiError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("echoworld http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("echoworld http %d: %s", e.StatusCode, e.Message)
}

func (e *apiError) HTTPStatusCode() int { return e.StatusCode }

// typed maps a response error back onto the messaging error taxonomy.
func (e *apiError) typed(op string) error {
	code := messaging.ErrorCode(e.Code)
	switch code {
	case messaging.CodeAuthentication, messaging.CodeValidation, messaging.CodeNotFound,
		messaging.CodeForbidden, messaging.CodeConflict, messaging.CodeTransientStore,
		messaging.CodeTransport, messaging.CodePartialFailure:
	default:
		code = messaging.CodeInternal
		if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
			code = messaging.CodeTransport
		}
	}
	return messaging.NewError(code, op, e.Message, e)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ae := &apiError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			ae.Code = env.Error.Code
			ae.Message = env.Error.Message
		}
		return resp, raw, ae
	}
	return resp, raw, nil
}

// do retries reads only. Writes surface their first failure so the caller decides
// whether to resubmit with the same client id.
func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	backoff := 500 * time.Millisecond
	attempts := 0
	if method == http.MethodGet {
		attempts = c.maxRetries
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return messaging.Wrap(messaging.CodeTransport, op, err)
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil || len(raw) == 0 {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return messaging.NewError(messaging.CodeTransport, op, "decode response", uErr)
			}
			return nil
		}
		if attempt >= attempts || !httpx.IsRetryableError(err) {
			if ae, ok := err.(*apiError); ok {
				return ae.typed(op)
			}
			return messaging.Wrap(messaging.CodeTransport, op, err)
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("EchoWorld request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", attempts,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return messaging.Wrap(messaging.CodeTransport, op, ctx.Err())
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
}

func (c *Client) Me(ctx context.Context) (*types.Profile, error) {
	var out struct {
		Profile *types.Profile `json:"profile"`
	}
	if err := c.do(ctx, "client.Me", http.MethodGet, "/api/me", nil, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

func (c *Client) EnsureMe(ctx context.Context, handle, displayName string) (*types.Profile, error) {
	var out struct {
		Profile *types.Profile `json:"profile"`
	}
	body := map[string]string{"handle": handle, "display_name": displayName}
	if err := c.do(ctx, "client.EnsureMe", http.MethodPut, "/api/me", body, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

func (c *Client) ProfileByHandle(ctx context.Context, handle string) (*types.Profile, error) {
	var out struct {
		Profile *types.Profile `json:"profile"`
	}
	path := "/api/profiles/" + url.PathEscape(handle)
	if err := c.do(ctx, "client.ProfileByHandle", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

func (c *Client) ListConversations(ctx context.Context, limit int) ([]*services.ConversationSummary, error) {
	var out struct {
		Conversations []*services.ConversationSummary `json:"conversations"`
	}
	if err := c.do(ctx, "client.ListConversations", http.MethodGet, withLimit("/api/conversations", limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	var out struct {
		Messages []*types.Message `json:"messages"`
	}
	path := withLimit("/api/conversations/"+conversationID.String()+"/messages", limit)
	if err := c.do(ctx, "client.ListMessages", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID uuid.UUID, content string, meta types.SendMetadata) (*types.Message, error) {
	var out struct {
		Message *types.Message `json:"message"`
	}
	body := map[string]any{
		"content":   content,
		"client_id": meta.ClientID,
		"parent_id": meta.ParentID,
		"extra":     meta.Extra,
	}
	path := "/api/conversations/" + conversationID.String() + "/messages"
	if err := c.do(ctx, "client.SendMessage", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

func (c *Client) EditMessage(ctx context.Context, messageID uuid.UUID, content string) (*types.Message, error) {
	var out struct {
		Message *types.Message `json:"message"`
	}
	body := map[string]string{"content": content}
	if err := c.do(ctx, "client.EditMessage", http.MethodPatch, "/api/messages/"+messageID.String(), body, &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	return c.do(ctx, "client.DeleteMessage", http.MethodDelete, "/api/messages/"+messageID.String(), nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	path := "/api/conversations/" + conversationID.String() + "/read"
	return c.do(ctx, "client.MarkRead", http.MethodPost, path, nil, nil)
}

func (c *Client) SetMuted(ctx context.Context, conversationID uuid.UUID, muted bool) error {
	path := "/api/conversations/" + conversationID.String() + "/mute"
	return c.do(ctx, "client.SetMuted", http.MethodPut, path, map[string]bool{"muted": muted}, nil)
}

// Unread is the caller's unread total plus the per-conversation breakdown.
type Unread struct {
	Total          int64               `json:"total"`
	ByConversation map[uuid.UUID]int64 `json:"by_conversation"`
}

func (c *Client) Unread(ctx context.Context) (*Unread, error) {
	var out Unread
	if err := c.do(ctx, "client.Unread", http.MethodGet, "/api/unread", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CountUnread(ctx context.Context) (int64, error) {
	u, err := c.Unread(ctx)
	if err != nil {
		return 0, err
	}
	return u.Total, nil
}

func (c *Client) StartDirectConversation(ctx context.Context, otherUserID uuid.UUID, originReference *string) (*types.Conversation, bool, error) {
	var out struct {
		Conversation *types.Conversation `json:"conversation"`
		Created      bool                `json:"created"`
	}
	body := map[string]any{"user_id": otherUserID, "origin_reference": originReference}
	if err := c.do(ctx, "client.StartDirectConversation", http.MethodPost, "/api/direct-conversations", body, &out); err != nil {
		return nil, false, err
	}
	return out.Conversation, out.Created, nil
}

func (c *Client) ListNotifications(ctx context.Context, limit int, unreadOnly bool) ([]*types.Notification, error) {
	var out struct {
		Notifications []*types.Notification `json:"notifications"`
	}
	path := withLimit("/api/notifications", limit)
	if unreadOnly {
		path += sep(path) + "unread=true"
	}
	if err := c.do(ctx, "client.ListNotifications", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) MarkNotificationsRead(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	body := map[string]any{"ids": ids}
	if err := c.do(ctx, "client.MarkNotificationsRead", http.MethodPost, "/api/notifications/read", body, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// PresenceSnapshot is the server's view of the default presence channel.
type PresenceSnapshot struct {
	Channel string         `json:"channel"`
	Online  int            `json:"online"`
	State   presence.State `json:"state"`
}

func (c *Client) Presence(ctx context.Context) (*PresenceSnapshot, error) {
	var out PresenceSnapshot
	if err := c.do(ctx, "client.Presence", http.MethodGet, "/api/presence", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func withLimit(path string, limit int) string {
	if limit <= 0 {
		return path
	}
	return path + sep(path) + "limit=" + strconv.Itoa(limit)
}

func sep(path string) string {
	if strings.Contains(path, "?") {
		return "&"
	}
	return "?"
}
