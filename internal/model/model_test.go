package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// ========================================
// Detection Tests
// ========================================

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSafeDefault(t *testing.T) {
	ts := time.Now()
	r := SafeDefault(ts)
	if r.Detected || r.Confidence != 0 || !r.Timestamp.Equal(ts) {
		t.Errorf("Unexpected safe default: %+v", r)
	}
}

func TestOutcomeAllowed(t *testing.T) {
	allowed := map[Outcome]bool{
		OutcomeAllowed:              true,
		OutcomeAllowedOverride:      true,
		OutcomeBlockedNoDetection:   false,
		OutcomeBlockedLowConfidence: false,
	}
	for o, want := range allowed {
		if o.Allowed() != want {
			t.Errorf("%s.Allowed() = %v", o, !want)
		}
	}
}

// ========================================
// Audit Row Tests
// ========================================

func TestAuditRecord_Row(t *testing.T) {
	rec := AuditRecord{
		Timestamp:  time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC),
		Detected:   true,
		Confidence: 0.856,
		IgnitionOn: true,
		Override:   false,
	}
	want := []string{"2025-03-14 09:26:53", "YES", "0.86", "ON", "NO"}
	if diff := cmp.Diff(want, rec.Row()); diff != "" {
		t.Errorf("Row mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAuditRow(t *testing.T) {
	got, err := ParseAuditRow([]string{"2025-03-14 09:26:53", "NO", "0.45", "OFF", "YES"}, time.UTC)
	if err != nil {
		t.Fatalf("ParseAuditRow failed: %v", err)
	}
	want := AuditRecord{
		Timestamp:  time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		Confidence: 0.45,
		Override:   true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Record mismatch (-want +got):\n%s", diff)
	}

	bad := [][]string{
		{"2025-03-14 09:26:53", "NO", "0.45", "OFF"},
		{"yesterday", "NO", "0.45", "OFF", "YES"},
		{"2025-03-14 09:26:53", "MAYBE", "0.45", "OFF", "YES"},
		{"2025-03-14 09:26:53", "NO", "high", "OFF", "YES"},
		{"2025-03-14 09:26:53", "NO", "0.45", "YES", "YES"},
		{"2025-03-14 09:26:53", "NO", "0.45", "OFF", "ON"},
	}
	for _, row := range bad {
		if _, err := ParseAuditRow(row, time.UTC); err == nil {
			t.Errorf("Expected error for %v", row)
		}
	}
}

func TestAuditRecordFor(t *testing.T) {
	ts := time.Now()
	d := ControlDecision{IgnitionAllowed: true, Outcome: OutcomeAllowedOverride, Override: true, Confidence: 0.1, Timestamp: ts}
	got := AuditRecordFor(d)
	if !got.IgnitionOn || !got.Override || got.Detected || got.Confidence != 0.1 || !got.Timestamp.Equal(ts) {
		t.Errorf("Unexpected record: %+v", got)
	}
}

func TestConfigurationError(t *testing.T) {
	var err error = &ConfigurationError{Key: "PORT", Value: -1, Reason: "must be positive"}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "PORT" {
		t.Fatalf("errors.As failed for %v", err)
	}
	if err.Error() != "invalid configuration PORT=-1: must be positive" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestFrameEmpty(t *testing.T) {
	if !(Frame{Width: 2, Height: 2}).Empty() {
		t.Error("frame without data should be empty")
	}
	if (Frame{Width: 1, Height: 1, Data: []byte{1, 2, 3}}).Empty() {
		t.Error("frame with data should not be empty")
	}
}
