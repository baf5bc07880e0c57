package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	context_ "github.com/mkrupp/streamhub/internal/infra/context"
	"github.com/mkrupp/streamhub/internal/infra/logging"
)

//nolint:paralleltest
func TestGetLoggerJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, logging.Configure(context.Background(), logging.LoggerConfig{
		Level:        "debug",
		JSON:         true,
		OutputHandle: &buf,
	}, "streamhub.test"))

	t.Cleanup(func() {
		_ = logging.Configure(context.Background(), logging.LoggerConfig{Output: "discard"}, "")
	})

	buf.Reset()

	ctx := context_.WithTraceID(context.Background(), "trace-1")
	logging.GetLogger("svc.authsvc").InfoContext(ctx, "register", "email", "ann@x.com", "password", "secret1")

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))

	assert.Equal(t, "register", entry["msg"])
	assert.Equal(t, "svc.authsvc", entry["logger"])
	assert.Equal(t, "streamhub.test", entry["app"])
	assert.Equal(t, "ann@x.com", entry["email"])
	assert.Equal(t, logging.RedactedValue, entry["password"])
	assert.Equal(t, map[string]any{"id": "trace-1"}, entry["trace"])
}

//nolint:paralleltest
func TestGetLoggerDiscard(t *testing.T) {
	require.NoError(t, logging.Configure(context.Background(), logging.LoggerConfig{Output: "discard"}, ""))

	log := logging.GetLogger("anything")
	assert.False(t, log.Enabled(context.Background(), logging.LevelError))
}
