package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biovault.org/internal/auth"
	"biovault.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	obs.SetLogger(obs.NewLogger("info", &buf))
	defer obs.SetLogger(obs.NewLogger("info", nil))

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithActor(ctx, &auth.Actor{ID: "actor-42"})

	require.NoError(t, LogEvent(ctx, "auth.token_issued", map[string]any{"email": "a@b.c"}))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["type"])
	assert.Equal(t, "auth.token_issued", entry["event"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "actor-42", entry["actor_id"])
	assert.Equal(t, "a@b.c", entry["email"])
}

func TestLogEventRequiresName(t *testing.T) {
	assert.Error(t, LogEvent(context.Background(), "  ", nil))
}
