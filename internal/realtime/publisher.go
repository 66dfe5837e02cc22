package realtime

import (
	"context"

	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

// Publisher is the write side of the realtime adapter. Broadcasts are best effort:
// transport failures are logged and counted, never returned.
type Publisher struct {
	emit Emitter
	log  *logger.Logger
}

func NewPublisher(emit Emitter, log *logger.Logger) *Publisher {
	return &Publisher{emit: emit, log: log.With("component", "RealtimePublisher")}
}

func (p *Publisher) Broadcast(ctx context.Context, rec Record) {
	if p == nil || p.emit == nil || rec == nil {
		return
	}
	event := rec.Event()
	for _, topic := range rec.Topics() {
		err := p.emit.Publish(ctx, Envelope{Channel: topic, Event: event, Data: rec})
		observability.Current().IncBroadcast(string(event), err == nil)
		if err != nil {
			err = domain.Wrap(domain.CodeTransport, "broadcast", err)
			p.log.Warn("realtime broadcast failed", "event", event, "topic", topic, "error", err)
		}
	}
}
