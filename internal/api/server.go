// Package api serves the controller's status, capture history and debug
// views over HTTP.
package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/dmxcam/internal/capture"
	"github.com/banshee-data/dmxcam/internal/controller"
	"github.com/banshee-data/dmxcam/internal/db"
	"github.com/banshee-data/dmxcam/internal/dmx"
	"github.com/banshee-data/dmxcam/internal/httputil"
	"github.com/banshee-data/dmxcam/internal/monitoring"
	"github.com/banshee-data/dmxcam/internal/storage"
	"github.com/banshee-data/dmxcam/internal/upload"
	"github.com/banshee-data/dmxcam/internal/version"
)

// ANSI escape codes for request logs.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// StatusSource reports controller state.
type StatusSource interface {
	Status() controller.Status
}

// UploadStatus reports the upload guard state.
type UploadStatus interface {
	Snapshot() upload.Snapshot
}

// History is the persisted capture and upload log.
type History interface {
	RecentCaptures(ctx context.Context, limit int) ([]capture.Result, error)
	RecentUploads(ctx context.Context, limit int) ([]upload.Task, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// Server holds the read-only views the API exposes. Nil fields are omitted
// from responses.
type Server struct {
	Controller StatusSource
	Bus        *dmx.FrameStats
	Uploads    UploadStatus
	History    History
	Pictures   *storage.Store
	Frames     *FrameHub
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version    string             `json:"version"`
	Time       time.Time          `json:"time"`
	Controller *controller.Status `json:"controller,omitempty"`
	Bus        *dmx.StatsSummary  `json:"bus,omitempty"`
	Upload     *upload.Snapshot   `json:"upload,omitempty"`
	Database   *db.Stats          `json:"database,omitempty"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %.2fms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the public API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/captures", s.listCaptures)
	mux.HandleFunc("/api/captures/{name}", s.showPicture)
	mux.HandleFunc("/api/uploads", s.listUploads)
	mux.HandleFunc("/api/frames", s.listFrames)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatusResponse{Version: version.String(), Time: time.Now().UTC()}
	if s.Controller != nil {
		st := s.Controller.Status()
		resp.Controller = &st
	}
	if s.Bus != nil {
		sum := s.Bus.Summary()
		resp.Bus = &sum
	}
	if s.Uploads != nil {
		snap := s.Uploads.Snapshot()
		resp.Upload = &snap
	}
	if s.History != nil {
		stats, err := s.History.Stats(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "failed to read database stats: "+err.Error())
			return
		}
		resp.Database = &stats
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.History == nil {
		httputil.NotFound(w, "capture history is not enabled")
		return
	}
	limit, ok := httputil.QueryLimit(r, defaultListLimit, maxListLimit)
	if !ok {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	captures, err := s.History.RecentCaptures(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve captures: "+err.Error())
		return
	}
	if captures == nil {
		captures = []capture.Result{}
	}
	httputil.WriteJSONOK(w, captures)
}

func (s *Server) showPicture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Pictures == nil {
		httputil.NotFound(w, "picture storage is not enabled")
		return
	}
	data, err := s.Pictures.Read(r.PathValue("name"))
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		httputil.BadRequest(w, err.Error())
		return
	case errors.Is(err, fs.ErrNotExist):
		httputil.NotFound(w, "no such picture")
		return
	case err != nil:
		httputil.InternalServerError(w, "failed to read picture: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", upload.ContentTypeJPEG)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.History == nil {
		httputil.NotFound(w, "upload history is not enabled")
		return
	}
	limit, ok := httputil.QueryLimit(r, defaultListLimit, maxListLimit)
	if !ok {
		httputil.BadRequest(w, "invalid 'limit' parameter")
		return
	}
	tasks, err := s.History.RecentUploads(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve uploads: "+err.Error())
		return
	}
	if tasks == nil {
		tasks = []upload.Task{}
	}
	httputil.WriteJSONOK(w, tasks)
}

func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.Frames == nil {
		httputil.WriteJSONOK(w, []controller.FrameEvent{})
		return
	}
	httputil.WriteJSONOK(w, s.Frames.Recent())
}
