package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/store"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordJobCreated(1024)
	m.RecordJobCreated(2048)
	m.RecordTransition("queued")
	m.RecordRegion("completed")
	m.RecordRegion("completed")
	m.RecordRegion("failed")
	m.RecordExport("success", 4096)

	if got := testutil.ToFloat64(m.jobsCreated); got != 2 {
		t.Errorf("jobs created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.regionsProcessed.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed regions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.exportsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("exports = %v, want 1", got)
	}
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"job not found"}`))
	})

	for _, id := range []string{"job_a", "job_b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/jobs/{id}", "404")); got != 2 {
		t.Errorf("requests for route = %v, want 2", got)
	}
}

func TestHandlerExposesStoreCollector(t *testing.T) {
	s := store.NewMemoryStore()
	s.CreateJob(context.Background(), &models.Job{
		ID:        "job_metrics",
		Status:    models.JobStatusQueued,
		Regions:   []models.Region{{ID: "q1"}, {ID: "q2"}},
		CreatedAt: time.Now(),
	})

	m := New()
	m.Registry().MustRegister(NewStoreCollector(s))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`regionocr_jobs_by_status{status="queued"} 1`,
		`regionocr_jobs_by_status{status="completed"} 0`,
		"regionocr_regions_total 2",
		"regionocr_store_up 1",
		"regionocr_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestWriteTextFiltersByPrefix(t *testing.T) {
	m := New()
	m.RecordJobCreated(10)

	var buf strings.Builder
	if err := m.WriteText(&buf, "regionocr_"); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "regionocr_jobs_created_total 1") {
		t.Errorf("missing counter in snapshot:\n%s", out)
	}
	if strings.Contains(out, "go_goroutines") {
		t.Errorf("runtime metrics not filtered:\n%s", out)
	}
}
