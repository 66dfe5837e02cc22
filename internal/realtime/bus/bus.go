package bus

import (
	"context"

	"github.com/yungbote/echoworld-backend/internal/realtime"
)

// Bus carries envelopes between nodes. Every node forwards what it receives into its local hub.
type Bus interface {
	Publish(ctx context.Context, env realtime.Envelope) error
	StartForwarder(ctx context.Context, onMsg func(env realtime.Envelope)) error
	Close() error
}
