package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/httpx"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

var errStreamClosed = errors.New("realtime stream closed by server")

var (
	relayMinBackoff = 500 * time.Millisecond
	relayMaxBackoff = 10 * time.Second
)

// Stream reads the realtime event stream until ctx ends or the server hangs up.
func (c *Client) Stream(ctx context.Context, onEvent func(event string, data []byte) error) error {
	return c.openStream(ctx, nil, onEvent)
}

// openStream calls onOpen once the server has accepted the connection.
func (c *Client) openStream(ctx context.Context, onOpen func(), onEvent func(event string, data []byte) error) error {
	const op = "client.Stream"
	req, err := c.newRequest(ctx, http.MethodGet, "/api/realtime/stream", nil)
	if err != nil {
		return messaging.Wrap(messaging.CodeTransport, op, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return messaging.Wrap(messaging.CodeTransport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		ae := &apiError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			ae.Code, ae.Message = env.Error.Code, env.Error.Message
		}
		return ae.typed(op)
	}

	c.log.Debug("realtime stream connected")
	if onOpen != nil {
		onOpen()
	}
	err = readSSE(resp.Body, onEvent)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		err = errStreamClosed
	}
	return messaging.Wrap(messaging.CodeTransport, op, err)
}

// Relay feeds the stream into a local hub under userID's topics, so a
// realtime.Session over that hub sees the same records a server-side one would.
// Presence snapshots go to onPresence when set. Transport failures reconnect
// with backoff; authentication failures end the relay.
func (c *Client) Relay(ctx context.Context, hub *realtime.Hub, userID uuid.UUID, onPresence func(presence.State)) error {
	backoff := relayMinBackoff
	for {
		connected := false
		err := c.openStream(ctx, func() { connected = true }, func(event string, data []byte) error {
			c.forward(hub, userID, onPresence, realtime.Event(event), data)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		if messaging.IsCode(err, messaging.CodeAuthentication) || messaging.IsCode(err, messaging.CodeForbidden) {
			return err
		}
		if connected {
			backoff = relayMinBackoff
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("realtime stream dropped; reconnecting", "error", err, "sleep", sleepFor.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleepFor):
		}
		if backoff < relayMaxBackoff {
			backoff *= 2
		}
	}
}

func (c *Client) forward(hub *realtime.Hub, userID uuid.UUID, onPresence func(presence.State), event realtime.Event, data []byte) {
	switch event {
	case realtime.EventMessageInsert:
		hub.Broadcast(realtime.Envelope{Channel: realtime.MessagesTopic(userID), Event: event, Data: json.RawMessage(data)})
	case realtime.EventNotificationInsert:
		hub.Broadcast(realtime.Envelope{Channel: realtime.NotificationsTopic(userID), Event: event, Data: json.RawMessage(data)})
	case realtime.EventPresenceState:
		if onPresence == nil {
			return
		}
		var st presence.State
		if err := json.Unmarshal(data, &st); err != nil {
			c.log.Debug("dropping malformed presence state", "error", err)
			return
		}
		onPresence(st)
	default:
		c.log.Debug("ignoring unknown stream event", "event", event)
	}
}

// readSSE calls onEvent once per complete event. Comment lines are skipped.
func readSSE(r io.Reader, onEvent func(event string, data []byte) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)
	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		ev := eventName
		dataLines = nil
		eventName = ""
		if onEvent == nil {
			return nil
		}
		return onEvent(ev, []byte(data))
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return flush()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
