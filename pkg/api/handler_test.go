package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/regionocr/pkg/api"
	"github.com/psantana5/regionocr/pkg/jobs"
	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/metrics"
	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/ratelimit"
	"github.com/psantana5/regionocr/pkg/store"
)

const q1Regions = `{"regions":[{"id":"q1","polygon":[[10,10],[220,10],[220,140],[10,140]],"type":"mixed","order":1}]}`

func quietLogger() *logging.Logger {
	logger := logging.NewLogger(logging.ERROR, false)
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func newService(t *testing.T, s store.Store, layout *store.Layout) *jobs.Service {
	t.Helper()
	return jobs.NewService(jobs.Options{
		Store:  s,
		Layout: layout,
		Logger: quietLogger(),
	})
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	layout := store.NewLayout(t.TempDir())
	s, err := store.NewFileStore(layout)
	require.NoError(t, err)
	h := api.NewJobHandler(newService(t, s, layout), quietLogger())
	return api.NewRouter(h, api.RouterOptions{})
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	part.Write(data)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to parse response: %v (%s)", err, w.Body.String())
	}
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	decode(t, w, &resp)
	return resp["detail"]
}

func createJob(t *testing.T, router http.Handler) models.Job {
	t.Helper()
	w := do(router, uploadRequest(t, api.UploadField, "demo.png", []byte("demo-image")))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Response: %s", w.Code, w.Body.String())
	}
	var job models.Job
	decode(t, w, &job)
	return job
}

func TestEndToEndScenario(t *testing.T) {
	router := newTestRouter(t)

	job := createJob(t, router)
	assert.Equal(t, models.JobStatusRegionsPending, job.Status)
	assert.Empty(t, job.Regions)

	w := do(router, httptest.NewRequest("PUT", "/jobs/"+job.ID+"/regions", strings.NewReader(q1Regions)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved models.RegionSetResponse
	decode(t, w, &saved)
	assert.Equal(t, models.RegionSetResponse{Message: "regions saved", Count: 1}, saved)

	w = do(router, httptest.NewRequest("POST", "/jobs/"+job.ID+"/run", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ran models.RunResponse
	decode(t, w, &ran)
	assert.Equal(t, models.RunResponse{JobID: job.ID, Status: models.JobStatusCompleted}, ran)

	w = do(router, httptest.NewRequest("GET", "/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Job
	decode(t, w, &got)
	require.Len(t, got.Regions, 1)
	assert.Equal(t, models.RegionStatusCompleted, got.Regions[0].Status)
	assert.True(t, strings.HasPrefix(got.Regions[0].OCRText, "[MOCK OCR]"), got.Regions[0].OCRText)
	assert.NotEmpty(t, got.Regions[0].SVGURL)
	assert.NotEmpty(t, got.Regions[0].CropURL)

	w = do(router, httptest.NewRequest("POST", "/jobs/"+job.ID+"/export/hwpx", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var exported models.ExportResponse
	decode(t, w, &exported)
	assert.True(t, strings.HasSuffix(exported.DownloadURL, ".hwpx"), exported.DownloadURL)

	w = do(router, httptest.NewRequest("GET", "/jobs/"+job.ID+"/export/hwpx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/hwp+zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), job.ID+".hwpx")

	body := w.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"mimetype", "Contents/q1.xml"}, names)
}

func TestCreateJobMissingFile(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, uploadRequest(t, "file", "demo.png", []byte("demo-image")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if d := detail(t, w); d != "image file is required" {
		t.Errorf("Unexpected detail %q", d)
	}

	req := httptest.NewRequest("POST", "/jobs", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	if w := do(router, req); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-multipart body, got %d", w.Code)
	}
}

func TestCreateJobUploadLimit(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	h := api.NewJobHandler(newService(t, store.NewMemoryStore(), layout), quietLogger())
	h.SetMaxUploadBytes(64)
	router := api.NewRouter(h, api.RouterOptions{})

	w := do(router, uploadRequest(t, api.UploadField, "big.png", bytes.Repeat([]byte("x"), 4096)))
	if w.Code == http.StatusCreated {
		t.Fatal("Oversized upload was accepted")
	}
	if w.Code >= 500 {
		t.Errorf("Expected a client error, got %d", w.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)
	job := createJob(t, router)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		detail string
	}{
		{"get unknown job", "GET", "/jobs/job_missing", "", http.StatusNotFound, "job not found"},
		{"regions on unknown job", "PUT", "/jobs/job_missing/regions", q1Regions, http.StatusNotFound, "job not found"},
		{"run unknown job", "POST", "/jobs/job_missing/run", "", http.StatusNotFound, "job not found"},
		{"export unknown job", "POST", "/jobs/job_missing/export/hwpx", "", http.StatusNotFound, "job not found"},
		{"run without regions", "POST", "/jobs/" + job.ID + "/run", "", http.StatusBadRequest, "regions not set"},
		{"export before run", "POST", "/jobs/" + job.ID + "/export/hwpx", "", http.StatusBadRequest, "job is not completed"},
		{"download before export", "GET", "/jobs/" + job.ID + "/export/hwpx", "", http.StatusNotFound, "export not found"},
		{"unknown route", "GET", "/nope", "", http.StatusNotFound, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := do(router, req)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d. Response: %s", tt.status, w.Code, w.Body.String())
			}
			if d := detail(t, w); d != tt.detail {
				t.Errorf("Expected detail %q, got %q", tt.detail, d)
			}
		})
	}
}

func TestSetRegionsRejectsInvalidBody(t *testing.T) {
	router := newTestRouter(t)
	job := createJob(t, router)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"regions":`},
		{"missing regions", `{}`},
		{"unknown field", `{"regions":[],"extra":1}`},
		{"three points", `{"regions":[{"id":"q1","polygon":[[0,0],[1,0],[1,1]],"type":"text"}]}`},
		{"three coords", `{"regions":[{"id":"q1","polygon":[[0,0,0],[1,0],[1,1],[0,1]],"type":"text"}]}`},
		{"bad type", `{"regions":[{"id":"q1","polygon":[[0,0],[1,0],[1,1],[0,1]],"type":"table"}]}`},
		{"duplicate ids", `{"regions":[{"id":"q1","polygon":[[0,0],[1,0],[1,1],[0,1]],"type":"text"},{"id":"q1","polygon":[[0,0],[1,0],[1,1],[0,1]],"type":"text"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, httptest.NewRequest("PUT", "/jobs/"+job.ID+"/regions", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d. Response: %s", w.Code, w.Body.String())
			}
		})
	}

	w := do(router, httptest.NewRequest("GET", "/jobs/"+job.ID, nil))
	var got models.Job
	decode(t, w, &got)
	assert.Equal(t, models.JobStatusRegionsPending, got.Status)
}

func TestListJobs(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, httptest.NewRequest("GET", "/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[],"count":0}`, w.Body.String())

	createJob(t, router)
	createJob(t, router)

	w = do(router, httptest.NewRequest("GET", "/jobs", nil))
	var resp struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Jobs, 2)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Contains(t, []interface{}{"healthy", "degraded"}, resp["status"])
	assert.Equal(t, "ok", resp["store"])
	assert.NotNil(t, resp["disk"])
}

type downStore struct {
	*store.MemoryStore
}

func (downStore) HealthCheck(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthStoreDown(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	h := api.NewJobHandler(newService(t, downStore{store.NewMemoryStore()}, layout), quietLogger())
	router := api.NewRouter(h, api.RouterOptions{})

	w := do(router, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Equal(t, "connection refused", resp["store"])
}

func TestUploadRateLimited(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	h := api.NewJobHandler(newService(t, store.NewMemoryStore(), layout), quietLogger())
	h.SetUploadLimiter(ratelimit.NewLimiter(0.001, 1))
	router := api.NewRouter(h, api.RouterOptions{})

	createJob(t, router)

	w := do(router, uploadRequest(t, api.UploadField, "demo.png", []byte("demo-image")))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// reads are not limited
	w = do(router, httptest.NewRequest("GET", "/jobs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	layout := store.NewLayout(t.TempDir())
	m := metrics.New()
	svc := jobs.NewService(jobs.Options{
		Store:   store.NewMemoryStore(),
		Layout:  layout,
		Metrics: m,
		Logger:  quietLogger(),
	})
	router := api.NewRouter(api.NewJobHandler(svc, quietLogger()), api.RouterOptions{
		Metrics:      m,
		ServeMetrics: true,
	})

	createJob(t, router)
	do(router, httptest.NewRequest("GET", "/jobs/job_missing", nil))

	w := do(router, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "regionocr_jobs_created_total 1")
	assert.Contains(t, body, `regionocr_http_requests_total{method="POST",route="/jobs",status="201"} 1`)
	assert.Contains(t, body, `regionocr_http_requests_total{method="GET",route="/jobs/{id}",status="404"} 1`)
}

func TestRequestIDEchoed(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest("GET", "/jobs", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := do(router, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
