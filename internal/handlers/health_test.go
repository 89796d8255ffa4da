package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/services"
)

type systemServiceStub struct {
	report domain.SystemHealthReport
	err    error
}

func (s *systemServiceStub) HealthReport(_ context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func (s *systemServiceStub) NextCounterValue(_ context.Context, _ services.CounterCommand) (int64, error) {
	return 0, errors.New("not implemented")
}

func TestHealthz(t *testing.T) {
	h := NewHealthHandlers(nil, handlerClock)

	rec := doRequest(http.HandlerFunc(h.Healthz), jsonRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != domain.HealthStatusOK {
		t.Fatalf("status = %q", resp.Status)
	}
	if resp.Timestamp != "2024-05-10T12:00:00Z" {
		t.Fatalf("timestamp = %q", resp.Timestamp)
	}
}

func TestReadyzHealthy(t *testing.T) {
	system := &systemServiceStub{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
		},
		Version:     "1.4.0",
		Uptime:      2 * time.Hour,
		GeneratedAt: handlerClock(),
	}}
	h := NewHealthHandlers(system, handlerClock)

	rec := doRequest(http.HandlerFunc(h.Readyz), jsonRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Uptime  string `json:"uptime"`
		Checks  map[string]struct {
			Status    string `json:"status"`
			LatencyMS int64  `json:"latency_ms"`
		} `json:"checks"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != domain.HealthStatusOK || resp.Version != "1.4.0" || resp.Uptime != "2h0m0s" {
		t.Fatalf("response = %+v", resp)
	}
	if check, ok := resp.Checks["firestore"]; !ok || check.LatencyMS != 12 {
		t.Fatalf("checks = %+v", resp.Checks)
	}
}

func TestReadyzFailingDependency(t *testing.T) {
	system := &systemServiceStub{report: domain.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
		},
	}}
	h := NewHealthHandlers(system, handlerClock)

	rec := doRequest(http.HandlerFunc(h.Readyz), jsonRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyzDegradedStaysServing(t *testing.T) {
	system := &systemServiceStub{report: domain.SystemHealthReport{
		Status: domain.HealthStatusDegraded,
	}}
	h := NewHealthHandlers(system, handlerClock)

	rec := doRequest(http.HandlerFunc(h.Readyz), jsonRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, degraded should stay 200", rec.Code)
	}
}

func TestReadyzReportError(t *testing.T) {
	h := NewHealthHandlers(&systemServiceStub{err: errors.New("collect failed")}, handlerClock)

	rec := doRequest(http.HandlerFunc(h.Readyz), jsonRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	h := NewHealthHandlers(nil, handlerClock)

	rec := doRequest(http.HandlerFunc(h.Readyz), jsonRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want liveness fallback", rec.Code)
	}
}
