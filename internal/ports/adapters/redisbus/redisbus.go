// Package redisbus publishes job events to a Redis pub/sub channel so other
// processes can follow a running job.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	DefaultChannel = "scenecut"

	dialTimeout    = 5 * time.Second
	publishTimeout = 2 * time.Second
)

const (
	TypeProgress    = "progress"
	TypeSceneResult = "scene_result"
	TypeJobResult   = "job_result"
)

// Envelope is the wire form of every published event.
type Envelope struct {
	Type  string          `json:"type"`
	JobID string          `json:"job_id"`
	Data  json.RawMessage `json:"data"`
}

type Bus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

// New connects to addr and verifies the connection with a ping.
func New(ctx context.Context, addr, channel string, log *logger.Logger) (*Bus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.Nop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Bus{
		log:     log.With("component", "redisbus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *Bus) Channel() string { return b.channel }

func (b *Bus) Progress(ev types.ProgressEvent) {
	b.publish(TypeProgress, ev.JobID, ev)
}

func (b *Bus) SceneResult(res types.SceneResult) {
	b.publish(TypeSceneResult, res.JobID, res)
}

func (b *Bus) JobResult(res types.JobResult) {
	b.publish(TypeJobResult, res.JobID, res)
}

// publish never fails the job: a lost event is only logged.
func (b *Bus) publish(kind, jobID string, v any) {
	raw, err := Encode(kind, jobID, v)
	if err != nil {
		b.log.Warn("encode event", "type", kind, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("redis publish failed", "type", kind, "job_id", jobID, "error", err)
	}
}

// Subscribe delivers every envelope on the channel to onMsg until ctx is
// done. It returns once the subscription is confirmed.
func (b *Bus) Subscribe(ctx context.Context, onMsg func(Envelope)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				env, err := Decode([]byte(m.Payload))
				if err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				onMsg(env)
			}
		}
	}()

	return nil
}

func (b *Bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func Encode(kind, jobID string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, JobID: jobID, Data: data})
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("event without type")
	}
	return env, nil
}
