package ai

import (
	"context"
	"errors"
	"testing"

	"ignitiongate/internal/model"
)

var testFrame = model.Frame{Seq: 1, Format: model.FormatJPEG, Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}

func TestSimulatedDetector_Pattern(t *testing.T) {
	d := NewSimulatedDetector()

	hits := 0
	for call := 1; call <= 20; call++ {
		result, err := d.Classify(context.Background(), testFrame)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", call, err)
		}

		wantHit := call%10 < 7
		if result.Detected != wantHit {
			t.Errorf("call %d: detected=%v, want %v", call, result.Detected, wantHit)
		}
		want := 0.45
		if wantHit {
			want = 0.85
			hits++
		}
		if result.Confidence != want {
			t.Errorf("call %d: confidence=%v, want %v", call, result.Confidence, want)
		}
	}
	if hits != 14 {
		t.Errorf("Expected 14 detections in 20 calls, got %d", hits)
	}

	status := d.Status()
	if status.TotalCalls != 20 || status.Failures != 0 {
		t.Errorf("Unexpected counters: %+v", status)
	}
	if !status.ModelLoaded || status.Backend != BackendSimulated {
		t.Errorf("Unexpected status: %+v", status)
	}
	if status.LastResult == nil {
		t.Fatal("Expected last result")
	}
}

func TestSimulatedDetector_Failures(t *testing.T) {
	tests := []struct {
		name  string
		ctx   func() context.Context
		frame model.Frame
	}{
		{
			name:  "empty frame",
			ctx:   context.Background,
			frame: model.Frame{},
		},
		{
			name: "cancelled context",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			frame: testFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewSimulatedDetector()
			result, err := d.Classify(tt.ctx(), tt.frame)
			if !errors.Is(err, model.ErrInference) {
				t.Fatalf("Expected ErrInference, got %v", err)
			}
			if result.Detected || result.Confidence != 0 {
				t.Errorf("Expected safe default, got %+v", result)
			}
			if status := d.Status(); status.Failures != 1 {
				t.Errorf("Expected 1 failure, got %d", status.Failures)
			}
		})
	}
}

func TestFallbackDetector_ReportsModelNotLoaded(t *testing.T) {
	d := NewFallbackDetector()
	if d.Status().ModelLoaded {
		t.Error("Fallback detector must report ModelLoaded=false")
	}
	result, err := d.Classify(context.Background(), testFrame)
	if err != nil || !result.Detected {
		t.Errorf("Fallback should follow the simulated pattern, got %+v, %v", result, err)
	}
}
