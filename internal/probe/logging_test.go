package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/leakguard/internal/clock"
	"github.com/project-kessel/leakguard/internal/guard"
	"github.com/project-kessel/leakguard/internal/request"
)

func decodeRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	g := guard.New(guard.Config{Observer: NewLoggingObserver(logger)})
	decision := g.CheckREST(context.Background(), request.New("/wp/v2/users"))
	require.False(t, decision.Allowed)

	records := decodeRecords(t, &buf)
	require.NotEmpty(t, records)

	id := records[0]["evaluation_id"]
	assert.NotEmpty(t, id)

	var messages []string
	for _, rec := range records {
		assert.Equal(t, EventGuardEvaluation, rec["event"])
		assert.Equal(t, "rest", rec["surface"])
		assert.Equal(t, id, rec["evaluation_id"], "all records share the evaluation id")
		messages = append(messages, rec["msg"].(string))
	}

	assert.Contains(t, messages, "Request denied")
	last := records[len(records)-1]
	assert.Equal(t, "Guard evaluation completed", last["msg"])
	assert.Equal(t, "denied", last["outcome"])
}

func TestLoggingObserver_ResolutionFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	g := guard.New(guard.Config{
		Observer: NewLoggingObserver(logger),
		Resolver: guard.ResolverFunc(func(context.Context) (guard.AuthContext, error) {
			return guard.AuthContext{}, assert.AnError
		}),
	})
	assert.Equal(t, "Comment", g.CommentAuthor(context.Background(), "admin"))

	records := decodeRecords(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "WARN", records[0]["level"])
	assert.Equal(t, "comment_author", records[0]["surface"])
	assert.Equal(t, assert.AnError.Error(), records[0]["error"])
}

func TestLoggingObserver_DistinctIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewLoggingObserver(logger)

	for range 2 {
		_, p := obs.EvaluationStarted(context.Background(), guard.SurfaceLoginError)
		p.End()
	}

	ids := map[any]bool{}
	for _, rec := range decodeRecords(t, &buf) {
		ids[rec["evaluation_id"]] = true
	}
	assert.Len(t, ids, 2)
}

func TestLoggingObserver_Duration(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	clk := clock.NewFixtureClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	obs := NewLoggingObserverWithConfig(LoggingObserverConfig{Logger: logger, Clock: clk})
	_, p := obs.EvaluationStarted(context.Background(), guard.SurfaceREST)
	clk.Advance(250 * time.Millisecond)
	p.Allowed()
	p.End()

	records := decodeRecords(t, &buf)
	last := records[len(records)-1]
	assert.Equal(t, "Guard evaluation completed", last["msg"])
	assert.Equal(t, "allowed", last["outcome"])
	assert.Equal(t, float64(250*time.Millisecond), last["duration"])
}
