package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"ignitiongate/internal/model"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.RegisterStatus(func() model.SystemStatus {
		return model.SystemStatus{
			Active:     true,
			Camera:     model.CameraStatus{FramesCaptured: 42, ReadErrors: 3},
			Controller: model.ControllerStatus{IgnitionOn: true, AuditFailures: 1, AuditDegraded: true},
		}
	})

	m.ObserveDecision(model.ControlDecision{Outcome: model.OutcomeAllowed})
	m.ObserveDecision(model.ControlDecision{Outcome: model.OutcomeAllowed})
	m.ObserveDecision(model.ControlDecision{Outcome: model.OutcomeBlockedNoDetection})
	m.InferenceFailed()
	m.CycleSkipped()

	body := scrape(t, m)
	for _, want := range []string{
		`ignitiongate_decisions_total{outcome="ALLOWED"} 2`,
		`ignitiongate_decisions_total{outcome="BLOCKED_NO_DETECTION"} 1`,
		`ignitiongate_inference_failures_total 1`,
		`ignitiongate_decision_cycles_skipped_total 1`,
		`ignitiongate_frames_captured_total 42`,
		`ignitiongate_camera_read_errors_total 3`,
		`ignitiongate_audit_degraded 1`,
		`ignitiongate_ignition_on 1`,
		`ignitiongate_override_enabled 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape is missing %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDecision(model.ControlDecision{Outcome: model.OutcomeAllowed})
	m.InferenceFailed()
	m.ActuatorFailed()
	m.CycleSkipped()
	m.BroadcastDropped()
	m.RegisterStatus(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("Expected 404 from a disabled registry, got %d", rec.Code)
	}
}
