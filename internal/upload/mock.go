package upload

import (
	"context"
	"sync"
)

// MockUploader records uploads and lets tests finish them on demand.
type MockUploader struct {
	mu sync.Mutex

	// StartErr is returned by UploadAsync when set.
	StartErr error

	Calls   []MockCall
	pending []StatusFunc
}

// MockCall records one UploadAsync call.
type MockCall struct {
	Artifact    Artifact
	RemotePath  string
	ContentType string
}

func (m *MockUploader) UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error {
	m.mu.Lock()
	if m.StartErr != nil {
		m.mu.Unlock()
		return m.StartErr
	}
	m.Calls = append(m.Calls, MockCall{Artifact: a, RemotePath: remotePath, ContentType: contentType})
	m.pending = append(m.pending, onStatus)
	m.mu.Unlock()

	onStatus(Event{Status: StatusInit, TotalBytes: int64(len(a.Data))})
	return nil
}

// Complete delivers a successful terminal event to the oldest pending upload.
func (m *MockUploader) Complete(url string) bool {
	call, fn, ok := m.pop()
	if !ok {
		return false
	}
	fn(Event{Status: StatusComplete, Metadata: Metadata{
		Name:        call.Artifact.Name,
		Size:        int64(len(call.Artifact.Data)),
		ContentType: call.ContentType,
		URL:         url,
	}})
	return true
}

// Fail delivers an error to the oldest pending upload.
func (m *MockUploader) Fail(err error) bool {
	_, fn, ok := m.pop()
	if !ok {
		return false
	}
	fn(Event{Status: StatusError, Err: err})
	return true
}

// CallCount returns how many uploads were started.
func (m *MockUploader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockUploader) pop() (MockCall, StatusFunc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return MockCall{}, nil, false
	}
	fn := m.pending[0]
	m.pending = m.pending[1:]
	call := m.Calls[len(m.Calls)-len(m.pending)-1]
	return call, fn, true
}

// MemoryLog is an in-memory upload Log.
type MemoryLog struct {
	mu    sync.Mutex
	Tasks map[string]Task
	Order []string
}

func (l *MemoryLog) RecordUploadStart(ctx context.Context, t Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Tasks == nil {
		l.Tasks = make(map[string]Task)
	}
	l.Tasks[t.ID] = t
	l.Order = append(l.Order, t.ID)
	return nil
}

func (l *MemoryLog) RecordUploadFinish(ctx context.Context, t Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Tasks == nil {
		l.Tasks = make(map[string]Task)
	}
	l.Tasks[t.ID] = t
	return nil
}

// Get returns the task with id.
func (l *MemoryLog) Get(id string) (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.Tasks[id]
	return t, ok
}
