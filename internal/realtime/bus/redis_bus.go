package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// wireEnvelope keeps the payload raw so the session decides how to decode it.
type wireEnvelope struct {
	Channel string          `json:"channel"`
	Event   realtime.Event  `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewRedisBus(log *logger.Logger, cfg RedisConfig) (*RedisBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = "echoworld.realtime"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		log:     log.With("service", "RedisRealtimeBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

// Client exposes the underlying connection for health checks.
func (b *RedisBus) Client() *goredis.Client {
	if b == nil {
		return nil
	}
	return b.rdb
}

func (b *RedisBus) Publish(ctx context.Context, env realtime.Envelope) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis realtime bus not initialized")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBus) StartForwarder(ctx context.Context, onMsg func(env realtime.Envelope)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis realtime bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				env, err := decodeEnvelope([]byte(m.Payload))
				if err != nil {
					b.log.Warn("bad redis realtime payload", "error", err)
					continue
				}
				onMsg(env)
			}
		}
	}()

	return nil
}

func decodeEnvelope(raw []byte) (realtime.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return realtime.Envelope{}, err
	}
	if strings.TrimSpace(w.Channel) == "" {
		return realtime.Envelope{}, fmt.Errorf("envelope without channel")
	}
	env := realtime.Envelope{Channel: w.Channel, Event: w.Event}
	if len(w.Data) > 0 {
		env.Data = w.Data
	}
	return env, nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
