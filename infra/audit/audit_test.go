package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/core/model"
)

func TestLog_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := New(Config{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	rec := Record{Timestamp: time.Now(), ATMID: "ATM_001", Diagnostic: strings.Repeat("x", 4096)}
	for i := 0; i < 300; i++ {
		require.NoError(t, l.Append(context.Background(), rec))
	}
	files, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "audit*.jsonl"))
	assert.Greater(t, len(files), 1, "expected rotated files")

	out, err := l.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, out, 300)
}

func TestLog_Query(t *testing.T) {
	l, err := New(Config{Path: filepath.Join(t.TempDir(), "nested", "audit.jsonl")})
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	t0 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, Record{Timestamp: t0, ATMID: "ATM_001"}))
	require.NoError(t, l.Append(ctx, Record{Timestamp: t0.Add(time.Hour), ATMID: "ATM_002"}))
	require.NoError(t, l.Append(ctx, Record{Timestamp: t0.Add(2 * time.Hour), ATMID: "ATM_001"}))

	out, err := l.Query(ctx, Query{ATMID: "ATM_001"})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = l.Query(ctx, Query{Start: t0.Add(30 * time.Minute), End: t0.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ATM_002", out[0].ATMID)
}

func TestLog_Run(t *testing.T) {
	l, err := New(Config{Path: filepath.Join(t.TempDir(), "audit.jsonl")})
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make(chan dashboard.Snapshot, 2)
	events <- dashboard.Snapshot{
		ID: "s1", ATMID: "ATM_001", Status: dashboard.StatusOK, Horizon: 1, GeneratedAt: day,
		Window:  model.ForecastWindow{Points: []model.ForecastPoint{{Date: day, Yhat: 21000, Lower: 20000, Upper: 22000}}},
		Verdict: &model.AlertVerdict{ATMID: "ATM_001", MaxPredicted: 21000, Threshold: 20000, IsAlert: true},
	}
	events <- dashboard.Snapshot{ID: "s2", ATMID: "ATM_001", Status: dashboard.StatusUnavailable, ErrorKind: "model_not_found", GeneratedAt: day.Add(time.Minute)}
	close(events)
	l.Run(context.Background(), events)

	out, err := l.Query(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].IsAlert)
	require.NotNil(t, out[0].MaxPredicted)
	assert.Equal(t, 21000.0, *out[0].MaxPredicted)
	assert.Equal(t, 1, out[0].Points)
	assert.Equal(t, "model_not_found", out[1].ErrorKind)
	assert.Nil(t, out[1].Threshold)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
