package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dmxcam/internal/capture"
	"github.com/banshee-data/dmxcam/internal/counter"
	"github.com/banshee-data/dmxcam/internal/upload"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dbPath
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db, _ := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp(), "second MigrateUp is a no-op")
}

func TestCounterStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counter.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	c := counter.New(db.CounterStore())
	require.NoError(t, c.Persist(5))
	require.NoError(t, db.Close())

	db, err = Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	v, err := counter.New(db.CounterStore()).Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)
}

func TestCounterStore_StagedUntilCommit(t *testing.T) {
	db, _ := openTestDB(t)
	store := db.CounterStore()

	require.NoError(t, store.WriteSlot(0, 42))
	v, err := store.ReadSlot(0)
	require.NoError(t, err)
	assert.Equal(t, byte(42), v, "staged value visible to the writer")

	fresh := db.CounterStore()
	v, err = fresh.ReadSlot(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), v, "uncommitted value not persisted")

	require.NoError(t, store.Commit())
	v, err = fresh.ReadSlot(0)
	require.NoError(t, err)
	assert.Equal(t, byte(42), v)

	_, err = store.ReadSlot(CounterSlots)
	assert.ErrorIs(t, err, counter.ErrSlotRange)
	assert.ErrorIs(t, store.WriteSlot(-1, 1), counter.ErrSlotRange)
}

func TestCaptureLog(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	for seq := uint32(1); seq <= 3; seq++ {
		require.NoError(t, db.RecordCapture(ctx, capture.Result{
			Sequence:      seq,
			Name:          "dmx_channel_100_" + string(rune('0'+seq)) + ".jpg",
			Size:          1000 + int(seq),
			CapturedAt:    at.Add(time.Duration(seq) * time.Minute),
			UploadStarted: seq%2 == 1,
		}))
	}

	got, err := db.RecentCaptures(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(3), got[0].Sequence)
	assert.Equal(t, "dmx_channel_100_3.jpg", got[0].Name)
	assert.Equal(t, at.Add(3*time.Minute), got[0].CapturedAt)
	assert.True(t, got[0].UploadStarted)
	assert.False(t, got[1].UploadStarted)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Captures: 3}, stats)
}

func TestUploadLog(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	task := upload.Task{
		ID:         "0b7e1c1e-6a43-4d9b-a0a4-1b8f7a4b5c6d",
		Artifact:   "dmx_channel_100_1.jpg",
		RemotePath: upload.DefaultRemotePath,
		State:      upload.StateInFlight,
		Size:       2048,
		StartedAt:  start,
	}
	require.NoError(t, db.RecordUploadStart(ctx, task))

	got, err := db.RecentUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, task, got[0])

	task.State = upload.StateCompleted
	task.URL = "https://example.test/data/photo.jpg"
	task.FinishedAt = start.Add(2 * time.Second)
	require.NoError(t, db.RecordUploadFinish(ctx, task))

	got, err = db.RecentUploads(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, task, got[0])

	err = db.RecordUploadFinish(ctx, upload.Task{ID: "missing", State: upload.StateFailed})
	assert.Error(t, err)
}

func TestServeBackup(t *testing.T) {
	db, _ := openTestDB(t)
	require.NoError(t, counter.New(db.CounterStore()).Persist(9))

	rec := httptest.NewRecorder()
	db.serveBackup(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}

func TestAttachAdminRoutes(t *testing.T) {
	db, _ := openTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SQL live debugging")
}
