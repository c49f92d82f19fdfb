package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/dmxcam/internal/httputil"
)

// HTTPUploader PUTs pictures to an object store or web server.
type HTTPUploader struct {
	BaseURL string
	Token   string
	Client  httputil.Doer

	wg sync.WaitGroup
}

// NewHTTPUploader returns an uploader for baseURL. token, when set, is sent
// as a bearer token.
func NewHTTPUploader(baseURL, token string) (*HTTPUploader, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upload URL %q", baseURL)
	}
	return &HTTPUploader{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// ObjectURL returns the URL remotePath is stored at.
func (h *HTTPUploader) ObjectURL(remotePath string) string {
	return h.BaseURL + path.Clean("/"+remotePath)
}

// UploadAsync starts the PUT in a new goroutine.
func (h *HTTPUploader) UploadAsync(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) error {
	if len(a.Data) == 0 {
		return fmt.Errorf("artifact %s is empty", a.Name)
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		onStatus(h.upload(ctx, a, remotePath, contentType, onStatus))
	}()
	return nil
}

// Wait blocks until all started uploads have finished.
func (h *HTTPUploader) Wait() {
	h.wg.Wait()
}

func (h *HTTPUploader) upload(ctx context.Context, a Artifact, remotePath, contentType string, onStatus StatusFunc) Event {
	total := int64(len(a.Data))
	onStatus(Event{Status: StatusInit, TotalBytes: total})

	body := &progressReader{
		r:     bytes.NewReader(a.Data),
		total: total,
		report: func(sent int64) {
			onStatus(Event{Status: StatusProgress, BytesSent: sent, TotalBytes: total})
		},
	}

	target := h.ObjectURL(remotePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return Event{Status: StatusError, Err: err}
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", contentType)
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	var client httputil.Doer = http.DefaultClient
	if h.Client != nil {
		client = h.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return Event{Status: StatusError, Err: fmt.Errorf("PUT %s: %w", target, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Event{Status: StatusError, Err: fmt.Errorf("PUT %s: unexpected status %s", target, resp.Status)}
	}

	link := target
	if loc := resp.Header.Get("Location"); loc != "" {
		if u, err := req.URL.Parse(loc); err == nil {
			link = u.String()
		}
	}
	return Event{
		Status:     StatusComplete,
		BytesSent:  total,
		TotalBytes: total,
		Metadata: Metadata{
			Name:        path.Base(remotePath),
			Size:        total,
			ContentType: contentType,
			URL:         link,
		},
	}
}

// progressReader reports each tenth of the body as it is read.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	step   int64
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if p.total > 0 {
		step := p.sent * 10 / p.total
		if step > p.step {
			p.step = step
			p.report(p.sent)
		}
	}
	return n, err
}
