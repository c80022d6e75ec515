package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/observability"
	"groupchat-service/internal/telemetry"
)

func TestNewPublisherFallsBackToNoop(t *testing.T) {
	p := NewPublisher("", "chat.events")
	require.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))

	ctx := context.Background()
	assert.NoError(t, p.Publish(ctx, "audit.chat", telemetry.AuditEnvelope{EventType: "audit_log"}))
	assert.NoError(t, p.PublishJSON(ctx, "ws_events.groups", observability.EventEnvelope{EventName: "ws_connect"}, map[string]string{"x-request-id": "r1"}))
	assert.NoError(t, p.Close())
}
