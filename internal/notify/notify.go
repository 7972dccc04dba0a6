// ABOUTME: Announces newly synced posts on NATS, one message per post.
// ABOUTME: Propagates the OpenTelemetry trace context in the message headers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/2389-research/postsync/internal/merge"
	"github.com/2389-research/postsync/internal/models"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "postsync.posts.new"

// PostEvent is the JSON payload published for each new post.
type PostEvent struct {
	RunID string      `json:"runId"`
	Key   string      `json:"key"`
	Post  models.Post `json:"post"`
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Publisher publishes post events to one subject.
type Publisher struct {
	conn    Conn
	subject string
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials NATS at url and returns a publisher owning the connection.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("postsync"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewPublisher(nc, subject), nil
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string {
	return p.subject
}

// PublishPosts publishes one event per post and flushes. It stops at the first error.
func (p *Publisher) PublishPosts(ctx context.Context, runID string, posts []models.Post) error {
	for _, post := range posts {
		data, err := json.Marshal(PostEvent{RunID: runID, Key: string(merge.IdentityOf(post)), Post: post})
		if err != nil {
			return fmt.Errorf("failed to marshal post event: %w", err)
		}
		msg := &nats.Msg{Subject: p.subject, Data: data}
		otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
		if err := p.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("failed to publish post event: %w", err)
		}
	}
	if len(posts) == 0 {
		return nil
	}
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("failed to flush post events: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (p *Publisher) Close() {
	p.conn.Close()
}
