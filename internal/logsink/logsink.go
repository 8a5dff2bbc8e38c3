// Package logsink optionally mirrors a project's log fan-out onto a
// Redis pub/sub channel for external dashboards, following the
// teacher's data/cache.NewAuto "enabled only if an env var is set"
// convention. It is additive ambient tooling (SPEC_FULL.md component
// 13), never a requirement the core runtime depends on, and it never
// blocks the simulator loop — the same non-blocking-fan-out contract
// every other logstream subscriber gets.
package logsink

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/logstream"
	"github.com/joluben/sigsim/internal/model"
)

// EnvAddr is the environment variable that enables the Redis mirror.
const EnvAddr = "REDIS_ADDR"

// Sink mirrors one project's published log entries onto
// "fleetsim:logs:<project_id>".
type Sink struct {
	client  *redis.Client
	channel string
	cancel  context.CancelFunc
}

// NewFromEnv builds a Sink if REDIS_ADDR is set, or returns (nil, false)
// otherwise — the same opt-in shape as the teacher's cache.NewAuto.
func NewFromEnv(projectID string) (*Sink, bool) {
	addr := os.Getenv(EnvAddr)
	if addr == "" {
		return nil, false
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Sink{
		client:  client,
		channel: "fleetsim:logs:" + projectID,
	}, true
}

// Attach subscribes sink to stream's fan-out and republishes every entry
// to Redis in a background goroutine. Marshal or publish failures are
// logged and dropped; they never propagate back to the simulator loop.
func (s *Sink) Attach(stream *logstream.Stream) {
	sub, _ := stream.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-sub.C():
				if !ok {
					return
				}
				s.publish(ctx, entry)
			}
		}
	}()
}

func (s *Sink) publish(ctx context.Context, entry model.LogEntry) {
	body, err := json.Marshal(entry)
	if err != nil {
		log.Warn().Err(err).Msg("logsink: failed to marshal log entry")
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Publish(pctx, s.channel, body).Err(); err != nil {
		log.Warn().Err(err).Str("channel", s.channel).Msg("logsink: redis publish failed")
	}
}

// Close stops the background mirror goroutine and closes the Redis
// client.
func (s *Sink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.client.Close()
}
