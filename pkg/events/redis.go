package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// DefaultStream is the Redis stream the notification dispatcher consumes.
const DefaultStream = "cognigate:events"

// publishTimeout bounds each XADD so a dead Redis never wedges the
// emitting goroutine pool.
const publishTimeout = 2 * time.Second

// RedisPublisher appends events to a Redis stream. Publishing happens on
// a dedicated goroutine fed by a bounded channel; when the buffer fills,
// events are dropped with a log line rather than blocking governance
// decisions.
type RedisPublisher struct {
	client *redis.Client
	stream string
	queue  chan contracts.Event
	done   chan struct{}
	logger *slog.Logger
}

// NewRedisPublisher connects to Redis and starts the publish loop.
func NewRedisPublisher(addr, password string, db int, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		stream: DefaultStream,
		queue:  make(chan contracts.Event, 1024),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.loop()
	return p
}

// WithStream overrides the stream name.
func (p *RedisPublisher) WithStream(stream string) *RedisPublisher {
	p.stream = stream
	return p
}

// Emit implements Emitter. Never blocks the caller.
func (p *RedisPublisher) Emit(event contracts.Event) {
	select {
	case p.queue <- event:
	default:
		p.logger.Warn("event queue full, dropping event",
			"event_id", event.ID, "type", string(event.Type))
	}
}

func (p *RedisPublisher) loop() {
	for {
		select {
		case event := <-p.queue:
			p.publish(event)
		case <-p.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case event := <-p.queue:
					p.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (p *RedisPublisher) publish(event contracts.Event) {
	record, err := json.Marshal(event.Record)
	if err != nil {
		p.logger.Error("marshal event record", "event_id", event.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"id":        event.ID,
			"type":      string(event.Type),
			"agent_id":  event.AgentID,
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
			"record":    string(record),
		},
	}).Err()
	if err != nil {
		p.logger.Error("publish event to redis", "event_id", event.ID, "error", err)
	}
}

// Close stops the publish loop and closes the Redis client.
func (p *RedisPublisher) Close() error {
	close(p.done)
	return p.client.Close()
}
