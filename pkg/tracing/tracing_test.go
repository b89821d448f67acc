package tracing

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/regionocr/pkg/logging"
)

func recordingProvider() (*Provider, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return newProvider(tp, "regionocr-test"), rec
}

func TestInitTracerDisabled(t *testing.T) {
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&bytes.Buffer{})

	p, err := InitTracer(Config{ServiceName: "regionocr", Enabled: false}, logger)
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	_, span := p.StartSpan(context.Background(), "noop")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestHTTPMiddlewareNamesSpanByRoute(t *testing.T) {
	p, rec := recordingProvider()

	r := mux.NewRouter()
	r.Use(HTTPMiddleware(p))
	r.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/jobs/job_1", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /jobs/{id}" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status for 500, got %v", spans[0].Status().Code)
	}
	if resp.Header().Get("Traceparent") == "" {
		t.Error("expected trace context in response headers")
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	p, rec := recordingProvider()

	_, span := p.StartSpan(context.Background(), "export")
	EndSpan(span, errors.New("boom"))

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Status().Description != "boom" {
		t.Fatalf("unexpected spans %+v", spans)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected recorded error event")
	}
}
