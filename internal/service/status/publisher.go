// Package status holds the latest published SystemStatus snapshot.
package status

import (
	"sync/atomic"
	"time"

	"ignitiongate/internal/model"
)

// Publisher swaps whole snapshots. Readers never block the writer and never
// see a partially written snapshot.
type Publisher struct {
	current atomic.Pointer[model.SystemStatus]
	version atomic.Uint64
}

// NewPublisher starts with an inactive snapshot.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.Publish(model.SystemStatus{Message: "System not started", Timestamp: time.Now()})
	return p
}

// Publish replaces the current snapshot. s must not be modified afterwards;
// pointer fields are copied so the caller may reuse its values.
func (p *Publisher) Publish(s model.SystemStatus) {
	if s.LastDecision != nil {
		d := *s.LastDecision
		s.LastDecision = &d
	}
	if s.Detector.LastResult != nil {
		r := *s.Detector.LastResult
		s.Detector.LastResult = &r
	}
	p.current.Store(&s)
	p.version.Add(1)
}

// Current returns a copy of the latest snapshot. Pointer fields are copied
// too, so callers cannot modify what other readers see.
func (p *Publisher) Current() model.SystemStatus {
	s := *p.current.Load()
	if s.LastDecision != nil {
		d := *s.LastDecision
		s.LastDecision = &d
	}
	if s.Detector.LastResult != nil {
		r := *s.Detector.LastResult
		s.Detector.LastResult = &r
	}
	return s
}

// Version increases with every Publish.
func (p *Publisher) Version() uint64 {
	return p.version.Load()
}
