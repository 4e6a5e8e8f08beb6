package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	// ErrTenantRequired is returned by every operation called without a tenant.
	ErrTenantRequired = errors.New("tenantID is required")

	// ErrClosed is returned once the bus has been closed.
	ErrClosed = errors.New("bus is closed")

	// ErrNoReplyTopic is returned by Reply for messages that were not requests.
	ErrNoReplyTopic = errors.New("message has no reply topic")
)

// DefaultRequestTimeout bounds Request when the context has no deadline.
const DefaultRequestTimeout = 30 * time.Second

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Reply publishes payload on the reply topic of a request message.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	topic := msg.Metadata[domain.MetaReplyTo]
	if topic == "" {
		return ErrNoReplyTopic
	}
	return b.Publish(ctx, msg.TenantID, topic, payload)
}

func newMessage(tenantID, topic string, payload []byte, meta map[string]string) *domain.Message {
	if meta == nil {
		meta = make(map[string]string)
	}
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  meta,
		Timestamp: time.Now().UnixNano(),
	}
}

func replyTopic(topic string) string {
	return topic + ".reply." + uuid.New().String()
}

// awaitReply waits for the first reply, the context, or the default timeout.
func awaitReply(ctx context.Context, replyCh <-chan []byte) ([]byte, error) {
	timeout := DefaultRequestTimeout
	if _, ok := ctx.Deadline(); ok {
		timeout = 0
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer:
		return nil, fmt.Errorf("request timeout after %s", timeout)
	}
}
