package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/psantana5/regionocr/internal/hoststats"
	"github.com/psantana5/regionocr/pkg/export"
	"github.com/psantana5/regionocr/pkg/jobs"
	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/ratelimit"
)

// DefaultMaxUploadBytes bounds a multipart upload when no limit is configured
const DefaultMaxUploadBytes = 32 << 20

// UploadField is the multipart form field carrying the page image
const UploadField = "image"

// JobHandler serves the job API on top of a jobs.Service
type JobHandler struct {
	svc            *jobs.Service
	logger         *logging.Logger
	maxUploadBytes int64
	uploadLimiter  *ratelimit.Limiter
}

// NewJobHandler creates a new job handler
func NewJobHandler(svc *jobs.Service, logger *logging.Logger) *JobHandler {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &JobHandler{
		svc:            svc,
		logger:         logger.WithField("component", "api"),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
}

// SetMaxUploadBytes sets the request size limit for POST /jobs
func (h *JobHandler) SetMaxUploadBytes(n int64) {
	if n > 0 {
		h.maxUploadBytes = n
	}
}

// SetUploadLimiter rate limits POST /jobs per client
func (h *JobHandler) SetUploadLimiter(l *ratelimit.Limiter) {
	h.uploadLimiter = l
}

// RegisterRoutes registers all API routes
func (h *JobHandler) RegisterRoutes(r *mux.Router) {
	var create http.Handler = http.HandlerFunc(h.CreateJob)
	if h.uploadLimiter != nil {
		create = h.uploadLimiter.Middleware(ratelimit.IPKeyFunc)(create)
	}
	r.Handle("/jobs", create).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}/regions", h.SetRegions).Methods("PUT")
	r.HandleFunc("/jobs/{id}/run", h.RunJob).Methods("POST")
	r.HandleFunc("/jobs/{id}/export/hwpx", h.ExportJob).Methods("POST")
	r.HandleFunc("/jobs/{id}/export/hwpx", h.DownloadExport).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// CreateJob accepts a multipart upload and creates a job awaiting regions
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read image")
		return
	}

	job, err := h.svc.Create(r.Context(), header.Filename, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListJobs returns every job, newest first
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJob returns a job with its regions
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// SetRegions replaces the job's region set
func (h *JobHandler) SetRegions(w http.ResponseWriter, r *http.Request) {
	var req models.RegionSetRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Regions == nil {
		writeDetail(w, http.StatusBadRequest, "regions is required")
		return
	}

	n, err := h.svc.SetRegions(r.Context(), mux.Vars(r)["id"], req.Regions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RegionSetResponse{Message: "regions saved", Count: n})
}

// RunJob runs the pipeline synchronously
func (h *JobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Run(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RunResponse{JobID: job.ID, Status: job.Status})
}

// ExportJob writes the HWPX archive of a completed job
func (h *JobHandler) ExportJob(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ExportResponse{DownloadURL: res.DownloadURL})
}

// DownloadExport streams the last written archive
func (h *JobHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.OpenExport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	name := filepath.Base(f.Name())
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// Health reports store reachability and data root disk usage
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	storeStatus := "ok"

	if err := h.svc.HealthCheck(r.Context()); err != nil {
		h.logger.Error("Store health check failed", map[string]interface{}{"error": err.Error()})
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	resp := map[string]interface{}{
		"status": status,
		"store":  storeStatus,
	}
	snap, err := hoststats.Collect(r.Context(), h.svc.DataRoot())
	if err != nil {
		h.logger.Warn("Failed to collect host stats", map[string]interface{}{"error": err.Error()})
	} else {
		resp["disk"] = snap.Disk
		resp["memory_used_percent"] = snap.MemoryUsedPct
		if snap.Degraded() && code == http.StatusOK {
			resp["status"] = "degraded"
		}
	}
	writeJSON(w, code, resp)
}
