package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/aegis/pkg/contextkeys"
)

func newBufferedSlog() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestNewEvent(t *testing.T) {
	t.Run("populates actor and request id from context", func(t *testing.T) {
		ctx := contextkeys.WithPrincipalID(context.Background(), 42)
		ctx = contextkeys.WithRequestID(ctx, "req-1")

		event := NewEvent(ctx, EventTypeAuthzPermissionGrant, EventStatusSuccess)
		require.NotNil(t, event.ActorID)
		assert.Equal(t, int64(42), *event.ActorID)
		assert.Equal(t, "req-1", event.RequestID)
		assert.False(t, event.Timestamp.IsZero())
	})

	t.Run("anonymous context leaves actor nil", func(t *testing.T) {
		event := NewEvent(context.Background(), EventTypeAuthzPermissionGrant, EventStatusSuccess)
		assert.Nil(t, event.ActorID)
		assert.Empty(t, event.RequestID)
	})
}

func TestSlogLogger(t *testing.T) {
	t.Run("writes all populated fields", func(t *testing.T) {
		slogger, buf := newBufferedSlog()
		logger := NewSlogLogger(slogger)

		actorID := int64(7)
		event := &Event{
			EventType:    EventTypeAuthzAccessDenied,
			Status:       EventStatusDenied,
			ActorID:      &actorID,
			ResourceType: ResourceTypePermission,
			ResourceID:   "edit-posts",
			RequestID:    "req-9",
			Message:      "access denied",
		}
		require.NoError(t, logger.Log(context.Background(), event))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "access denied", entry["msg"])
		assert.Equal(t, string(EventTypeAuthzAccessDenied), entry["event_type"])
		assert.Equal(t, string(EventStatusDenied), entry["status"])
		assert.Equal(t, float64(7), entry["actor_id"])
		assert.Equal(t, "edit-posts", entry["resource_id"])
		assert.Equal(t, "req-9", entry["request_id"])
	})

	t.Run("omits empty fields", func(t *testing.T) {
		slogger, buf := newBufferedSlog()
		logger := NewSlogLogger(slogger)

		require.NoError(t, logger.Log(context.Background(),
			NewEvent(context.Background(), EventTypeRoleCreate, EventStatusSuccess)))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.NotContains(t, entry, "actor_id")
		assert.NotContains(t, entry, "resource_id")
		assert.NotContains(t, entry, "request_id")
	})
}

func TestLogHelpers(t *testing.T) {
	t.Run("LogMutation", func(t *testing.T) {
		slogger, buf := newBufferedSlog()
		logger := NewSlogLogger(slogger)

		ctx := contextkeys.WithPrincipalID(context.Background(), 3)
		require.NoError(t, LogMutation(ctx, logger, EventTypeAuthzPermissionGrant, ResourceTypeUser, "7", "granted permissions"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "granted permissions", entry["msg"])
		assert.Equal(t, string(EventStatusSuccess), entry["status"])
		assert.Equal(t, float64(3), entry["actor_id"])
	})

	t.Run("LogDenied", func(t *testing.T) {
		slogger, buf := newBufferedSlog()
		logger := NewSlogLogger(slogger)

		require.NoError(t, LogDenied(context.Background(), logger, ResourceTypePermission, "delete-posts", "forbidden"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, string(EventTypeAuthzAccessDenied), entry["event_type"])
		assert.Equal(t, string(EventStatusDenied), entry["status"])
	})

	t.Run("nil logger is safe", func(t *testing.T) {
		assert.NoError(t, LogMutation(context.Background(), nil, EventTypeAuthzPermissionGrant, ResourceTypeUser, "1", ""))
		assert.NoError(t, LogDenied(context.Background(), nil, ResourceTypeUser, "1", ""))
	})
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger{}
	assert.NoError(t, logger.Log(context.Background(), &Event{}))
	assert.NoError(t, logger.Close())
}
