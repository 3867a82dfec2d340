package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ndreyko/tributary/app/models"
	"github.com/ndreyko/tributary/internal/pkg/cache"
	"github.com/ndreyko/tributary/internal/pkg/env"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

const (
	// Redis keys
	MessageKeyPrefix = "tribute:event:"
	QueueKey         = "tribute:outbox"

	MessageTTL = 24 * time.Hour

	defaultHTTPTimeout = 10 * time.Second
)

// Message is the wire format pushed to downstream consumers. The full
// processing result is flattened so consumers do not need our model types.
type Message struct {
	ID        string           `json:"id"`
	Event     string           `json:"event"`
	Category  string           `json:"category"`
	Type      string           `json:"type"`
	EmittedAt time.Time        `json:"emitted_at"`
	Payload   *tribute.Result  `json:"payload"`
	Payment   *models.Payment  `json:"payment,omitempty"`
	Donation  *models.Donation `json:"donation,omitempty"`
}

func newMessage(r *tribute.Result) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Event:     r.Key(),
		Category:  string(r.Category),
		Type:      string(r.Type),
		EmittedAt: time.Now(),
		Payload:   r,
		Payment:   r.Payment,
		Donation:  r.Donation,
	}
}

// RedisPublisher pushes processing results onto a Redis list so a separate
// consumer process can drain them. The message body is stored under its own
// key with a TTL and only the id travels through the list.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher returns a publisher backed by the shared cache client.
func NewRedisPublisher() *RedisPublisher {
	return &RedisPublisher{client: cache.GetClient()}
}

func (p *RedisPublisher) Publish(ctx context.Context, r *tribute.Result) error {
	msg := newMessage(r)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}

	// Pipeline keeps the body write and the list push together
	pipe := p.client.Pipeline()
	pipe.Set(ctx, MessageKeyPrefix+msg.ID, data, MessageTTL)
	pipe.LPush(ctx, QueueKey, msg.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}

	log.Debugf("[Outbox] Enqueued %s (%s)", msg.ID, msg.Event)
	return nil
}

// PendingSize returns the number of messages waiting in the queue.
func (p *RedisPublisher) PendingSize(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, QueueKey).Result()
}

// HTTPPublisher POSTs each processing result as JSON to a configured sink URL.
type HTTPPublisher struct {
	url    string
	client *http.Client
}

// NewHTTPPublisher returns a publisher that delivers to the given endpoint.
func NewHTTPPublisher(url string) *HTTPPublisher {
	return &HTTPPublisher{
		url:    url,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, r *tribute.Result) error {
	msg := newMessage(r)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned status %d", resp.StatusCode)
	}

	log.Debugf("[Outbox] Delivered %s (%s) to %s", msg.ID, msg.Event, p.url)
	return nil
}

// NewPublisherFromEnv builds the publisher selected by SINK_MODE
// (redis, http or off). Off returns nil, which disables publishing.
func NewPublisherFromEnv() (tribute.Publisher, error) {
	mode := env.GetEnv("SINK_MODE", "off")
	switch mode {
	case "redis":
		return NewRedisPublisher(), nil
	case "http":
		url := env.GetEnv("SINK_URL", "")
		if url == "" {
			return nil, fmt.Errorf("SINK_MODE=http requires SINK_URL")
		}
		return NewHTTPPublisher(url), nil
	case "off", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown SINK_MODE %q", mode)
	}
}
