package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(ctx, "test message", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestContextHandler_InjectsBatchAndSource(t *testing.T) {
	ctx := WithSource(WithBatch(context.Background(), 42), "nhl_boxscore")

	record := logLine(t, ctx)
	assert.Equal(t, float64(42), record["batch_id"])
	assert.Equal(t, "nhl_boxscore", record["source"])
	assert.Equal(t, "value", record["key"])
}

func TestContextHandler_NoContextValues(t *testing.T) {
	record := logLine(t, context.Background())
	_, hasBatch := record["batch_id"]
	_, hasSource := record["source"]
	assert.False(t, hasBatch)
	assert.False(t, hasSource)
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Zero(t, BatchFromContext(ctx))
	assert.Empty(t, SourceFromContext(ctx))

	ctx = WithBatch(ctx, 7)
	ctx = WithSource(ctx, "html_reports")
	assert.EqualValues(t, 7, BatchFromContext(ctx))
	assert.Equal(t, "html_reports", SourceFromContext(ctx))
}
