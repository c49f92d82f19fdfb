package upload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func testArtifact(seq uint32) Artifact {
	return Artifact{Name: "dmx_channel_100_1.jpg", Sequence: seq, Data: []byte{1, 2, 3}}
}

func TestGuard_SingleFlight(t *testing.T) {
	up := &MockUploader{}
	g := NewGuard(up, GuardOptions{})
	ctx := context.Background()

	assert.True(t, g.TryStartUpload(ctx, testArtifact(1)))
	assert.True(t, g.InFlight())
	assert.Equal(t, StateInFlight, g.Snapshot().State)

	assert.False(t, g.TryStartUpload(ctx, testArtifact(2)), "second upload must be refused while in flight")
	assert.Equal(t, 1, up.CallCount())
	assert.Equal(t, 1, g.Snapshot().Dropped)

	require.True(t, up.Complete("https://example.test/data/photo.jpg"))
	assert.False(t, g.InFlight())

	snap := g.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	require.NotNil(t, snap.Last)
	assert.Equal(t, StateCompleted, snap.Last.State)
	assert.Equal(t, "https://example.test/data/photo.jpg", snap.Last.URL)

	assert.True(t, g.TryStartUpload(ctx, testArtifact(3)), "guard re-arms after completion")
	assert.Equal(t, 2, up.CallCount())
}

func TestGuard_DefaultsPassedToUploader(t *testing.T) {
	up := &MockUploader{}
	g := NewGuard(up, GuardOptions{})
	require.True(t, g.TryStartUpload(context.Background(), testArtifact(1)))

	require.Len(t, up.Calls, 1)
	assert.Equal(t, DefaultRemotePath, up.Calls[0].RemotePath)
	assert.Equal(t, ContentTypeJPEG, up.Calls[0].ContentType)
}

func TestGuard_SingleUploadPerSession(t *testing.T) {
	up := &MockUploader{}
	g := NewGuard(up, GuardOptions{SingleUploadPerSession: true})
	ctx := context.Background()

	require.True(t, g.TryStartUpload(ctx, testArtifact(1)))
	require.True(t, up.Fail(errors.New("connection reset")))

	// A failed upload does not use up the session.
	require.True(t, g.TryStartUpload(ctx, testArtifact(2)))
	require.True(t, up.Complete("https://example.test/x"))

	assert.False(t, g.TryStartUpload(ctx, testArtifact(3)))
	assert.True(t, g.Snapshot().Locked)
	assert.Equal(t, 2, up.CallCount())
}

func TestGuard_FailureReturnsToIdle(t *testing.T) {
	up := &MockUploader{}
	log := &MemoryLog{}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	g := NewGuard(up, GuardOptions{Log: log, Clock: clock})

	require.True(t, g.TryStartUpload(context.Background(), testArtifact(1)))
	clock.Advance(3 * time.Second)
	require.True(t, up.Fail(errors.New("401 unauthorized")))

	snap := g.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	require.NotNil(t, snap.Last)
	assert.Equal(t, StateFailed, snap.Last.State)
	assert.Equal(t, "401 unauthorized", snap.Last.Error)

	task, ok := log.Get(snap.Last.ID)
	require.True(t, ok)
	assert.Equal(t, StateFailed, task.State)
	assert.Equal(t, 3*time.Second, task.FinishedAt.Sub(task.StartedAt))
	assert.Equal(t, int64(3), task.Size)
}

func TestGuard_StartErrorReleases(t *testing.T) {
	up := &MockUploader{StartErr: errors.New("no route to host")}
	g := NewGuard(up, GuardOptions{})

	assert.False(t, g.TryStartUpload(context.Background(), testArtifact(1)))
	assert.False(t, g.InFlight())
	require.NotNil(t, g.Snapshot().Last)
	assert.Equal(t, StateFailed, g.Snapshot().Last.State)

	up.StartErr = nil
	assert.True(t, g.TryStartUpload(context.Background(), testArtifact(2)))
}

func TestGuard_ConcurrentStartsAdmitOne(t *testing.T) {
	up := &MockUploader{}
	g := NewGuard(up, GuardOptions{})

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if g.TryStartUpload(context.Background(), testArtifact(uint32(i))) {
				started.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, 1, up.CallCount())
}

type doubleTerminal struct{}

func (doubleTerminal) UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error {
	onStatus(Event{Status: StatusComplete, Metadata: Metadata{URL: "first"}})
	onStatus(Event{Status: StatusError, Err: errors.New("late")})
	return nil
}

func TestGuard_OnlyFirstTerminalEventCounts(t *testing.T) {
	g := NewGuard(doubleTerminal{}, GuardOptions{})
	require.True(t, g.TryStartUpload(context.Background(), testArtifact(1)))

	last := g.Snapshot().Last
	require.NotNil(t, last)
	assert.Equal(t, StateCompleted, last.State)
	assert.Equal(t, "first", last.URL)
}

// instantUploader completes every upload before UploadAsync returns.
type instantUploader struct {
	calls atomic.Int32
}

func (u *instantUploader) UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error {
	u.calls.Add(1)
	onStatus(Event{Status: StatusComplete, Metadata: Metadata{Name: a.Name, URL: "https://example.test/" + remotePath}})
	return nil
}

func TestGuard_SingleUploadPerSessionUnderContention(t *testing.T) {
	for round := 0; round < 50; round++ {
		up := &instantUploader{}
		g := NewGuard(up, GuardOptions{SingleUploadPerSession: true})

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				g.TryStartUpload(context.Background(), testArtifact(uint32(i)))
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), up.calls.Load(), "round %d", round)
		assert.False(t, g.InFlight())
		assert.True(t, g.Snapshot().Locked)
	}
}

func TestGuard_UploadOutlivesCancelledContext(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	up, err := NewHTTPUploader(srv.URL, "")
	require.NoError(t, err)
	g := NewGuard(up, GuardOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, g.TryStartUpload(ctx, testArtifact(1)))

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never reached the server")
	}
	cancel()
	close(release)
	up.Wait()

	last := g.Snapshot().Last
	require.NotNil(t, last)
	assert.Equal(t, StateCompleted, last.State, last.Error)
	assert.Equal(t, srv.URL+"/"+DefaultRemotePath, last.URL)
}
