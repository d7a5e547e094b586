// Package api serves predictions and training history over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/trashdetect/perception/internal/httputil"
	"github.com/trashdetect/perception/internal/infer"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/runlog"
	"github.com/trashdetect/perception/internal/security"
	"github.com/trashdetect/perception/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	// DefaultMaxUploadBytes bounds the multipart body accepted by /predict.
	DefaultMaxUploadBytes = 32 << 20
	defaultListLimit      = 20
	maxListLimit          = 500
)

// Predictor is what the server needs from a loaded model.
type Predictor interface {
	PredictReader(r io.Reader) (*infer.Prediction, error)
	PredictFile(path string) (*infer.Prediction, error)
	NumTrashClasses() int
}

// Options configures optional server features.
type Options struct {
	// Runs enables /runs, /reports and the /debug/ admin routes.
	Runs *runlog.Store
	// ImageDirs enables predicting server-side files by path. Paths outside
	// these directories are refused.
	ImageDirs      []string
	MaxUploadBytes int64
}

type Server struct {
	predictor Predictor
	runs      *runlog.Store
	imageDirs []string
	maxUpload int64
}

func NewServer(p Predictor, o Options) *Server {
	maxUpload := o.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Server{
		predictor: p,
		runs:      o.Runs,
		imageDirs: o.ImageDirs,
		maxUpload: maxUpload,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
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

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux builds the route table. The run log routes and the debug index
// are mounted only when a run log store was given.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/predict", s.predict)
	if s.runs != nil {
		mux.HandleFunc("/runs", s.listRuns)
		mux.HandleFunc("/runs/chart", s.runChart)
		mux.HandleFunc("/reports", s.listReports)
		if err := s.runs.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// Health is the /health response body.
type Health struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	NumTrashClasses int    `json:"num_trash_classes"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, Health{
		Status:          "ok",
		Version:         version.Version,
		NumTrashClasses: s.predictor.NumTrashClasses(),
	})
}

// pathRequest is the JSON body for predicting a file already on the server.
type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var (
		pred *infer.Prediction
		err  error
	)
	if isJSON(r) {
		pred, err = s.predictPath(w, r)
		if pred == nil && err == nil {
			return
		}
	} else {
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			httputil.BadRequest(w, "multipart field 'file' is required")
			return
		}
		defer file.Close()
		pred, err = s.predictor.PredictReader(file)
	}

	if err != nil {
		if errors.Is(err, perr.ErrData) {
			httputil.UnprocessableEntity(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("prediction failed: %v", err))
		return
	}
	httputil.WriteJSONOK(w, pred)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// predictPath handles a JSON {"path": ...} body. It writes the response
// itself and returns (nil, nil) when the request is refused.
func (s *Server) predictPath(w http.ResponseWriter, r *http.Request) (*infer.Prediction, error) {
	if len(s.imageDirs) == 0 {
		httputil.WriteJSONError(w, http.StatusForbidden, "path predictions are disabled")
		return nil, nil
	}
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		httputil.BadRequest(w, "body must be {\"path\": \"...\"}")
		return nil, nil
	}
	if err := security.ValidatePathWithinAllowedDirs(req.Path, s.imageDirs); err != nil {
		httputil.WriteJSONError(w, http.StatusForbidden, err.Error())
		return nil, nil
	}
	return s.predictor.PredictFile(req.Path)
}

func listLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	return n, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := listLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := listLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	reports, err := s.runs.ListReports(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve reports: %v", err))
		return
	}
	if reports == nil {
		reports = []runlog.Report{}
	}
	httputil.WriteJSONOK(w, reports)
}

// runChart renders the per-epoch loss terms of one run as an HTML line chart.
func (s *Server) runChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing 'id' parameter")
		return
	}
	run, err := s.runs.GetRun(id)
	if errors.Is(err, runlog.ErrNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}
	epochs, err := s.runs.EpochLosses(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve epochs: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := renderLossChart(&buf, run, epochs); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderLossChart(w io.Writer, run *runlog.Run, epochs []runlog.Epoch) error {
	x := make([]string, len(epochs))
	series := map[string][]opts.LineData{}
	names := []string{"total", "bbox", "person", "trash", "disposal"}
	for i, e := range epochs {
		x[i] = strconv.Itoa(e.Epoch)
		for _, term := range []struct {
			name string
			v    float64
		}{{"total", e.Loss}, {"bbox", e.BBox}, {"person", e.Person}, {"trash", e.Trash}, {"disposal", e.Disposal}} {
			series[term.name] = append(series[term.name], opts.LineData{Value: term.v})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training loss", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Training loss",
			Subtitle: fmt.Sprintf("run=%s status=%s started=%s", run.ID, run.Status, run.StartedAt.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "loss"}),
	)
	line.SetXAxis(x)
	for _, name := range names {
		line.AddSeries(name, series[name])
	}

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
