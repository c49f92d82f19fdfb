// Package upload sends captured pictures to a remote store, at most one at a
// time.
package upload

import (
	"context"
	"fmt"
	"time"
)

// ContentTypeJPEG is the content type of every captured picture.
const ContentTypeJPEG = "image/jpeg"

// DefaultRemotePath is the object path pictures are uploaded to.
const DefaultRemotePath = "data/photo.jpg"

// Artifact is a stored picture ready for upload.
type Artifact struct {
	Name       string    `json:"name"`
	Sequence   uint32    `json:"sequence"`
	Data       []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// Status is the phase reported by an uploader callback.
type Status int

const (
	StatusInit Status = iota
	StatusProgress
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusProgress:
		return "progress"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further events follow s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Metadata describes an uploaded object.
type Metadata struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Event is one status callback from an uploader.
type Event struct {
	Status     Status
	BytesSent  int64
	TotalBytes int64
	Metadata   Metadata
	Err        error
}

// StatusFunc receives upload events. It is called from the uploader's
// goroutine.
type StatusFunc func(Event)

// Uploader starts an upload in the background and reports progress through
// onStatus. The returned error covers only failure to start; once started,
// the uploader must deliver exactly one terminal event.
type Uploader interface {
	UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error
}

// State is the guard's lifecycle.
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown upload state %q", s)
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Task records one upload attempt.
type Task struct {
	ID         string    `json:"id"`
	Artifact   string    `json:"artifact"`
	RemotePath string    `json:"remote_path"`
	State      State     `json:"state"`
	Size       int64     `json:"size"`
	URL        string    `json:"url,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Log persists upload tasks.
type Log interface {
	RecordUploadStart(ctx context.Context, t Task) error
	RecordUploadFinish(ctx context.Context, t Task) error
}
