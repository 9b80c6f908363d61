package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event names emitted by the timetable core. Delivery is best-effort:
// consumers that need fan-out subscribe on the configured channel.
const (
	JobCompleted     = "timetable.job.completed"
	VersionPublished = "timetable.version.published"
	ConflictCreated  = "timetable.conflict.created"
)

// Event is the envelope published on the redis channel.
type Event struct {
	Name       string         `json:"name"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher fans domain events out to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, name string, payload map[string]any)
}

// RedisPublisher publishes events on a redis pub/sub channel. Publish
// failures are logged and swallowed: the core does not guarantee delivery.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher constructs a publisher for the given channel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Publish serialises and emits a single event.
func (p *RedisPublisher) Publish(ctx context.Context, name string, payload map[string]any) {
	if p.client == nil {
		return
	}
	event := Event{Name: name, OccurredAt: time.Now().UTC(), Payload: payload}
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Sugar().Errorw("failed to encode event", "event", name, "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		p.logger.Sugar().Warnw("failed to publish event", "event", name, "channel", p.channel, "error", err)
	}
}

// NopPublisher discards events. Used when events are disabled and in tests.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, map[string]any) {}
