package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		body   map[string]any
	}{
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, map[string]int{"frames": 3}) }, http.StatusOK, map[string]any{"frames": 3.0}},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad limit") }, http.StatusBadRequest, map[string]any{"error": "bad limit"}},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no such picture") }, http.StatusNotFound, map[string]any{"error": "no such picture"}},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"}},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "db closed") }, http.StatusInternalServerError, map[string]any{"error": "db closed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var got map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.body, got)
		})
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
		ok    bool
	}{
		{"", 20, true},
		{"?limit=5", 5, true},
		{"?limit=5000", 100, true},
		{"?limit=0", 0, false},
		{"?limit=abc", 0, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/captures"+tt.query, nil)
		got, ok := QueryLimit(r, 20, 100)
		assert.Equal(t, tt.ok, ok, tt.query)
		assert.Equal(t, tt.want, got, tt.query)
	}
}

func TestMockDoer(t *testing.T) {
	m := NewMockDoer(
		MockResponse{StatusCode: http.StatusCreated, Body: "created"},
		MockResponse{Err: errors.New("connection refused")},
	)

	req, err := http.NewRequest(http.MethodPut, "http://example.test/data/photo.jpg", bytes.NewReader([]byte{1, 2, 3}))
	require.NoError(t, err)
	resp, err := m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	req2, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	_, err = m.Do(req2)
	assert.ErrorContains(t, err, "connection refused")

	req3, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	resp, err = m.Do(req3)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	reqs, bodies := m.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []byte{1, 2, 3}, bodies[0])
}
