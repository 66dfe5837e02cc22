package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/realtime/bus"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

// Realtime groups the per-process fan-out pieces. Bus is nil on a single node.
type Realtime struct {
	Hub       *realtime.Hub
	Publisher *realtime.Publisher
	Presence  *presence.Hub
	Bus       *bus.RedisBus
}

func wireRealtime(log *logger.Logger, cfg Config) (Realtime, error) {
	log.Info("Wiring realtime...")
	hub := realtime.NewHub(log)
	rt := Realtime{
		Hub:      hub,
		Presence: presence.NewHub(log, cfg.Presence.TTL),
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		rt.Publisher = realtime.NewPublisher(&realtime.HubEmitter{Hub: hub}, log)
		return rt, nil
	}

	rb, err := bus.NewRedisBus(log, cfg.Redis)
	if err != nil {
		return Realtime{}, fmt.Errorf("init redis bus: %w", err)
	}
	rt.Bus = rb
	rt.Publisher = realtime.NewPublisher(rb, log)
	return rt, nil
}

// start begins forwarding bus traffic into the local hub and expiring stale presence.
func (rt Realtime) start(ctx context.Context) error {
	rt.Presence.StartSweeper(ctx)
	if rt.Bus == nil {
		return nil
	}
	return rt.Bus.StartForwarder(ctx, rt.Hub.Broadcast)
}

func (rt Realtime) close() error {
	if rt.Bus == nil {
		return nil
	}
	return rt.Bus.Close()
}
