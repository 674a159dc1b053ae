package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ignitiongate/internal/model"
)

const (
	simulatedCycle     = 10
	simulatedHits      = 7
	simulatedHitScore  = 0.85
	simulatedMissScore = 0.45
)

// SimulatedDetector returns a fixed pattern instead of running a model: of
// every ten calls the first six and the tenth detect at 0.85, the rest miss
// at 0.45. The frame content is ignored.
type SimulatedDetector struct {
	mu       sync.Mutex
	count    uint64
	stats    CallStats
	fallback bool
	now      func() time.Time
}

// NewSimulatedDetector creates the simulated backend as the configured one.
func NewSimulatedDetector() *SimulatedDetector {
	return &SimulatedDetector{now: time.Now}
}

// NewFallbackDetector creates the simulated backend standing in for a model
// that failed to load. Its status reports ModelLoaded=false.
func NewFallbackDetector() *SimulatedDetector {
	d := NewSimulatedDetector()
	d.fallback = true
	return d
}

func (d *SimulatedDetector) Classify(ctx context.Context, frame model.Frame) (model.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%w: %v", model.ErrInference, err)
		d.stats.Record(model.DetectionResult{}, err)
		return model.SafeDefault(d.now()), err
	}
	if frame.Empty() {
		err := fmt.Errorf("%w: empty frame", model.ErrInference)
		d.stats.Record(model.DetectionResult{}, err)
		return model.SafeDefault(d.now()), err
	}

	d.mu.Lock()
	d.count++
	hit := d.count%simulatedCycle < simulatedHits
	d.mu.Unlock()

	score := simulatedMissScore
	if hit {
		score = simulatedHitScore
	}
	result := model.NewDetectionResult(hit, score, d.now())
	d.stats.Record(result, nil)
	return result, nil
}

func (d *SimulatedDetector) Status() model.DetectorStatus {
	return d.stats.Snapshot(BackendSimulated, !d.fallback)
}

func (d *SimulatedDetector) Close() error {
	return nil
}
