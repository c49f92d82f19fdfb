package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/dmxcam/internal/fixture"
	"github.com/banshee-data/dmxcam/internal/httputil"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var tailTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/tail.html.tmpl"))

// AttachAdminRoutes adds the frame tail and channel chart under /debug/.
// These routes are reachable only from localhost or over Tailscale.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("frames", "live tail of decoded fixture frames", s.serveTailPage)
	debug.HandleSilentFunc("tail", s.serveTail)
	debug.HandleFunc("fixture-chart", "fixture channel history chart", s.serveChart)
}

func (s *Server) serveTailPage(w http.ResponseWriter, r *http.Request) {
	buf := bytes.NewBuffer(nil)
	if err := tailTemplate.Execute(buf, struct{ Stream string }{"/debug/tail"}); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// serveTail streams frame events as server-sent events.
func (s *Server) serveTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Frames == nil {
		http.Error(w, "Frame tail not enabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, events := s.Frames.Subscribe()
	defer s.Frames.Unsubscribe(id)

	_, _ = w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// chartFields are the footprint channels plotted by serveChart.
var chartFields = []fixture.Field{
	fixture.FieldPictureIndex,
	fixture.FieldBrightness,
	fixture.FieldContrast,
	fixture.FieldSaturation,
	fixture.FieldSpecialEffect,
	fixture.FieldOutput,
}

// serveChart renders the recent raw channel values as a step line chart.
func (s *Server) serveChart(w http.ResponseWriter, r *http.Request) {
	var events []fixtureSample
	if s.Frames != nil {
		for _, ev := range s.Frames.Recent() {
			events = append(events, fixtureSample{at: ev.At, rec: ev.Record})
		}
	}
	if len(events) == 0 {
		httputil.NotFound(w, "no fixture changes recorded yet")
		return
	}

	x := make([]string, len(events))
	for i, ev := range events {
		x[i] = ev.at.Format("15:04:05.000")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fixture channels", Theme: "dark", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Fixture channels", Subtitle: fmt.Sprintf("%d changes, last %s", len(events), events[len(events)-1].at.Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 255}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for _, f := range chartFields {
		data := make([]opts.LineData, len(events))
		for i, ev := range events {
			data[i] = opts.LineData{Value: ev.value(f)}
		}
		line.AddSeries(f.String(), data, charts.WithLineChartOpts(opts.LineChart{Step: "end"}))
	}

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

type fixtureSample struct {
	at  time.Time
	rec fixture.Record
}

func (s fixtureSample) value(f fixture.Field) int {
	switch f {
	case fixture.FieldPictureIndex:
		return int(s.rec.PictureIndex)
	case fixture.FieldBrightness:
		return int(s.rec.Brightness)
	case fixture.FieldContrast:
		return int(s.rec.Contrast)
	case fixture.FieldSaturation:
		return int(s.rec.Saturation)
	case fixture.FieldSpecialEffect:
		return int(s.rec.SpecialEffect)
	case fixture.FieldHorizontalMirror:
		return int(s.rec.HorizontalMirror)
	case fixture.FieldVerticalFlip:
		return int(s.rec.VerticalFlip)
	case fixture.FieldOutput:
		return int(s.rec.OutputEnabled)
	}
	return 0
}
