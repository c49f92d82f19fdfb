package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/timeutil"
)

// GuardOptions configures a Guard.
type GuardOptions struct {
	RemotePath  string
	ContentType string

	// SingleUploadPerSession stops the guard accepting new uploads once one
	// has completed successfully, until the process restarts.
	SingleUploadPerSession bool

	Log   Log
	Clock timeutil.Clock
}

// Guard lets at most one upload run at a time. Pictures offered while an
// upload is in flight are dropped, not queued.
type Guard struct {
	uploader Uploader
	opts     GuardOptions

	inFlight  atomic.Bool
	completed atomic.Bool

	mu      sync.Mutex
	current *Task
	last    *Task
	dropped int
}

// NewGuard returns an idle guard for uploader.
func NewGuard(uploader Uploader, opts GuardOptions) *Guard {
	if opts.RemotePath == "" {
		opts.RemotePath = DefaultRemotePath
	}
	if opts.ContentType == "" {
		opts.ContentType = ContentTypeJPEG
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Guard{uploader: uploader, opts: opts}
}

// TryStartUpload starts uploading a unless an upload is already running or
// the session's single upload has been used. It reports whether the upload
// was started. Cancelling ctx after the upload has started does not abort it.
func (g *Guard) TryStartUpload(ctx context.Context, a Artifact) bool {
	if g.opts.SingleUploadPerSession && g.completed.Load() {
		monitoring.Debugf("upload: session upload already done, skipping %s", a.Name)
		g.noteDropped()
		return false
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		monitoring.Logf("upload: busy, dropping %s", a.Name)
		g.noteDropped()
		return false
	}
	// finish sets completed before it clears inFlight.
	if g.opts.SingleUploadPerSession && g.completed.Load() {
		g.inFlight.Store(false)
		monitoring.Debugf("upload: session upload already done, skipping %s", a.Name)
		g.noteDropped()
		return false
	}
	ctx = context.WithoutCancel(ctx)

	task := &Task{
		ID:         uuid.NewString(),
		Artifact:   a.Name,
		RemotePath: g.opts.RemotePath,
		State:      StateInFlight,
		Size:       int64(len(a.Data)),
		StartedAt:  g.opts.Clock.Now(),
	}
	g.mu.Lock()
	g.current = task
	g.mu.Unlock()

	if g.opts.Log != nil {
		if err := g.opts.Log.RecordUploadStart(ctx, *task); err != nil {
			monitoring.Logf("upload: failed to record task %s: %v", task.ID, err)
		}
	}

	var once sync.Once
	onStatus := func(ev Event) {
		if ev.Status.Terminal() {
			once.Do(func() { g.finish(ctx, task, ev) })
			return
		}
		g.progress(task, ev)
	}

	if err := g.uploader.UploadAsync(ctx, a, g.opts.RemotePath, g.opts.ContentType, onStatus); err != nil {
		once.Do(func() { g.finish(ctx, task, Event{Status: StatusError, Err: err}) })
		return false
	}
	return true
}

func (g *Guard) progress(task *Task, ev Event) {
	switch ev.Status {
	case StatusInit:
		monitoring.Logf("upload %s: started %s -> %s", task.ID, task.Artifact, task.RemotePath)
	case StatusProgress:
		monitoring.Debugf("upload %s: %d/%d bytes", task.ID, ev.BytesSent, ev.TotalBytes)
	}
}

func (g *Guard) finish(ctx context.Context, task *Task, ev Event) {
	g.mu.Lock()
	done := *task
	done.FinishedAt = g.opts.Clock.Now()
	if ev.Status == StatusComplete {
		done.State = StateCompleted
		done.URL = ev.Metadata.URL
	} else {
		done.State = StateFailed
		err := ev.Err
		if err == nil {
			err = errors.New("upload failed")
		}
		done.Error = err.Error()
	}
	g.current = nil
	g.last = &done
	g.mu.Unlock()

	if done.State == StateCompleted {
		md := ev.Metadata
		monitoring.Logf("upload %s: complete name=%s size=%d type=%s", done.ID, md.Name, md.Size, md.ContentType)
		monitoring.Logf("upload %s: download URL %s", done.ID, md.URL)
		g.completed.Store(true)
	} else {
		monitoring.Logf("upload %s: failed: %s", done.ID, done.Error)
	}

	if g.opts.Log != nil {
		if err := g.opts.Log.RecordUploadFinish(ctx, done); err != nil {
			monitoring.Logf("upload: failed to record result of %s: %v", done.ID, err)
		}
	}

	g.inFlight.Store(false)
}

func (g *Guard) noteDropped() {
	g.mu.Lock()
	g.dropped++
	g.mu.Unlock()
}

// Snapshot is the guard's observable state.
type Snapshot struct {
	State   State `json:"state"`
	Current *Task `json:"current,omitempty"`
	Last    *Task `json:"last,omitempty"`
	Dropped int   `json:"dropped"`
	Locked  bool  `json:"session_locked"`
}

// Snapshot returns the current state. Completed and failed uploads leave the
// guard idle; their outcome is in Last.
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		State:   StateIdle,
		Dropped: g.dropped,
		Locked:  g.opts.SingleUploadPerSession && g.completed.Load(),
	}
	if g.current != nil {
		s.State = StateInFlight
		cur := *g.current
		s.Current = &cur
	}
	if g.last != nil {
		last := *g.last
		s.Last = &last
	}
	return s
}

// InFlight reports whether an upload is running.
func (g *Guard) InFlight() bool {
	return g.inFlight.Load()
}
