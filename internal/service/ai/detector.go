package ai

import (
	"context"
	"sync/atomic"

	"ignitiongate/internal/model"
)

// Backend names reported in DetectorStatus.
const (
	BackendDNN       = "dnn"
	BackendSimulated = "simulated"
)

// Detector classifies a frame as "target present" or not.
//
// Classify fails with an error wrapping model.ErrInference; callers treat that
// as "not detected". Implementations must be safe for concurrent use.
type Detector interface {
	Classify(ctx context.Context, frame model.Frame) (model.DetectionResult, error)
	Status() model.DetectorStatus
	Close() error
}

// CallStats counts classifications for Status. Zero value is ready to use.
type CallStats struct {
	calls    atomic.Uint64
	failures atomic.Uint64
	last     atomic.Pointer[model.DetectionResult]
}

// Record accounts for one Classify call.
func (s *CallStats) Record(result model.DetectionResult, err error) {
	s.calls.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	s.last.Store(&result)
}

// Calls returns the number of recorded calls.
func (s *CallStats) Calls() uint64 {
	return s.calls.Load()
}

// Snapshot builds a DetectorStatus from the counters.
func (s *CallStats) Snapshot(backend string, modelLoaded bool) model.DetectorStatus {
	status := model.DetectorStatus{
		Backend:     backend,
		ModelLoaded: modelLoaded,
		TotalCalls:  s.calls.Load(),
		Failures:    s.failures.Load(),
	}
	if last := s.last.Load(); last != nil {
		r := *last
		status.LastResult = &r
	}
	return status
}
