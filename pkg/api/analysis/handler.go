// Package analysis provides the HTTP surface (spec.md §6.1):
// POST /analyze, GET /progress/{jobId} (SSE), GET /report-data,
// GET /download, GET /health. Grounded on the teacher's handler-struct
// pattern (pkg/api/config/handler.go: a Handler holding its dependencies,
// one method per route) and its SSE flusher loop
// (pkg/api/edgar/stream_handler.go: HandleEdgarFSAPMapStream).
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ncrc/justdata/pkg/core/engerr"
	"github.com/ncrc/justdata/pkg/core/filterset"
	"github.com/ncrc/justdata/pkg/core/job"
	"github.com/ncrc/justdata/pkg/core/recipe"
	"github.com/ncrc/justdata/pkg/core/store"
	"github.com/ncrc/justdata/pkg/core/warehouse"
)

// Handler holds the process-wide dependencies every route needs.
type Handler struct {
	Orchestrator *job.Orchestrator
	Store        *store.Store
	Warehouse    warehouse.Client
	Version      string
	Log          *zap.Logger
}

func New(o *job.Orchestrator, st *store.Store, wh warehouse.Client, version string, log *zap.Logger) *Handler {
	return &Handler{Orchestrator: o, Store: st, Warehouse: wh, Version: version, Log: log}
}

// AnalysisRequest is the POST /analyze body (spec.md §6.1).
type AnalysisRequest struct {
	FilterSet filterset.FilterSet `json:"filterSet"`
	Recipe    recipe.Name         `json:"recipe"`
}

// AnalysisResponse is returned on successful submission.
type AnalysisResponse struct {
	JobID       string `json:"jobId"`
	StatusURL   string `json:"statusUrl"`
	ProgressURL string `json:"progressUrl"`
	ReportURL   string `json:"reportUrl"`
	DownloadURL string `json:"downloadUrl"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleAnalyze implements POST /analyze (spec.md §6.1: "Validates; calls
// orchestrator.submit. Response: { jobId, statusUrl, progressUrl, reportUrl,
// downloadUrl }. 400 on validation failure.").
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	req := AnalysisRequest{FilterSet: filterset.Default()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	rec, err := recipe.Get(req.Recipe)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.Orchestrator.Submit(req.FilterSet, rec)
	if err != nil {
		var verr *engerr.ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(AnalysisResponse{
		JobID:       id,
		StatusURL:   "/status?job_id=" + id,
		ProgressURL: "/progress/" + id,
		ReportURL:   "/report-data?job_id=" + id,
		DownloadURL: "/download?job_id=" + id,
	})
}

// HandleStatus implements GET /status?job_id=… — a point-in-time read of
// the job's state, for polling clients that do not keep an SSE connection.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("job_id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "job_id required")
		return
	}
	status, err := h.Orchestrator.Get(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown job")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// HandleProgress implements GET /progress/{jobId}: a server-sent-event
// stream of progress.Event values, replayed from the backlog and ending
// after the terminal event (spec.md §6.1).
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "job id required")
		return
	}

	ch, backlog, err := h.Orchestrator.Subscribe(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	startSeq := int64(0)
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if n, err := strconv.ParseInt(last, 10, 64); err == nil {
			startSeq = n + 1
		}
	}

	send := func(e any, seq int64) {
		data, _ := json.Marshal(e)
		fmt.Fprintf(w, "id: %d\ndata: %s\n\n", seq, data)
		flusher.Flush()
	}

	for _, e := range backlog {
		if e.Seq < startSeq {
			continue
		}
		send(e, e.Seq)
		if e.Terminal {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			send(e, e.Seq)
			if e.Terminal {
				return
			}
		}
	}
}

// HandleReportData implements GET /report-data?job_id=… (spec.md §6.1:
// "returns the Report JSON").
func (h *Handler) HandleReportData(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("job_id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "job_id required")
		return
	}

	status, err := h.Orchestrator.Get(id)
	if err == nil && status.State != "" && !(status.State == "Succeeded" || status.State == "Failed" || status.State == "Cancelled") {
		writeJSONError(w, http.StatusConflict, "job not yet terminal")
		return
	}

	snapshot, err := h.Store.Snapshot(id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrExpired):
			writeJSONError(w, http.StatusGone, "report expired")
		default:
			writeJSONError(w, http.StatusNotFound, "unknown job")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(snapshot)
}

// HandleDownload implements GET /download?job_id=…&format=… (spec.md §6.1:
// "404 if report absent, 410 if expired, 415 if format unsupported by
// recipe").
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("job_id")
	format := r.URL.Query().Get("format")
	if id == "" || format == "" {
		writeJSONError(w, http.StatusBadRequest, "job_id and format required")
		return
	}

	data, mime, filename, err := h.Store.DownloadStream(id, format)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrExpired):
			writeJSONError(w, http.StatusGone, "report expired")
		case errors.Is(err, store.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "unknown job")
		case strings.Contains(err.Error(), "unsupported format"):
			writeJSONError(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.Write(data)
}

// HandleCancel implements an operational cancel route (spec.md §4.8
// "cancel(jobId) -> bool"), exposed so operators can abort a runaway job.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("job_id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "job_id required")
		return
	}
	ok := h.Orchestrator.Cancel(id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"cancelled": ok})
}

// healthCheckTimeout bounds the readiness probe issued on every /health
// request so an unreachable warehouse fails fast rather than hanging the
// request open.
const healthCheckTimeout = 3 * time.Second

// HealthResponse is the GET /health body (spec.md §6.1: "returns { ok: true,
// version } once warehouse credentials are resolvable").
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleHealth implements GET /health (spec.md §6.1: "503 when warehouse
// credentials cannot be resolved").
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.Warehouse == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{OK: false, Error: "warehouse not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if _, err := h.Warehouse.Execute(ctx, "SELECT 1", nil); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{OK: false, Error: "warehouse unreachable: " + err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{OK: true, Version: h.Version})
}
