package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanorule/internal/engine"
)

func newTestStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := OpenResultStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func makeReport(fileID string, at time.Time) *engine.Report {
	return &engine.Report{
		FileID:         fileID,
		Digest:         Digest("content of " + fileID),
		RulesetVersion: 3,
		AnalyzedAt:     at,
		Issues: []engine.Issue{{
			RuleID:      "kernel-panic",
			RuleName:    "Kernel Panic",
			LineNumber:  3,
			MatchedText: "1 match: Kernel panic",
			Severity:    engine.SeverityHigh,
			MatchCount:  1,
		}},
		Summary: engine.Summary{TotalIssues: 1, HighSeverity: 1},
	}
}

func TestResultStorePutGet(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(makeReport("f1", at)))

	got, err := store.Get("f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f1", got.FileID)
	assert.Equal(t, uint64(3), got.RulesetVersion)
	assert.True(t, at.Equal(got.AnalyzedAt))
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "Kernel Panic", got.Issues[0].RuleName)

	meta, err := store.Meta("f1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 1, meta.HighSeverity)
	assert.Equal(t, Digest("content of f1"), meta.Digest)
}

func TestResultStoreMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get("nope")
	assert.NoError(t, err)
	assert.Nil(t, got)

	meta, err := store.Meta("nope")
	assert.NoError(t, err)
	assert.Nil(t, meta)
}

func TestResultStoreListAndDelete(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	require.NoError(t, store.Put(makeReport("old", base.Add(-time.Hour))))
	require.NoError(t, store.Put(makeReport("new", base)))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].FileID)
	assert.Equal(t, "old", list[1].FileID)

	require.NoError(t, store.Delete("new"))
	got, err := store.Get("new")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResultStorePurge(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.Put(makeReport("stale", now.Add(-48*time.Hour))))
	require.NoError(t, store.Put(makeReport("fresh", now)))

	purged, err := store.PurgeOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, purged)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].FileID)
}

func TestRunCleanerStopsWithContext(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(makeReport("stale", time.Now().Add(-time.Hour))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunCleaner(ctx, 10*time.Millisecond, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	assert.Eventually(t, func() bool {
		r, err := store.Get("stale")
		return err == nil && r == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}
}

func TestDigest(t *testing.T) {
	assert.Len(t, Digest("x"), 64)
	assert.Equal(t, Digest("same"), Digest("same"))
	assert.NotEqual(t, Digest("a"), Digest("b"))
}
