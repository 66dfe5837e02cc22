package realtime

import "context"

// Emitter hands an envelope to the transport.
type Emitter interface {
	Publish(ctx context.Context, env Envelope) error
}

// HubEmitter delivers straight into the local hub (single node).
type HubEmitter struct{ Hub *Hub }

func (e *HubEmitter) Publish(ctx context.Context, env Envelope) error {
	e.Hub.Broadcast(env)
	return nil
}
