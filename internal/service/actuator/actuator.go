// Package actuator applies ignition decisions to the outside world.
package actuator

import (
	"context"
	"sync"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
)

// Actuator receives every decision. A failing Apply never changes the
// decision; the caller logs and counts it.
type Actuator interface {
	Apply(ctx context.Context, d model.ControlDecision) error
	Close() error
}

// LogActuator logs ignition transitions. Used when no relay is configured.
type LogActuator struct {
	logger *logger.Logger

	mu      sync.Mutex
	applied bool
	on      bool
}

func NewLogActuator(logger *logger.Logger) *LogActuator {
	return &LogActuator{logger: logger}
}

func (a *LogActuator) Apply(_ context.Context, d model.ControlDecision) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.applied && a.on == d.IgnitionAllowed {
		return nil
	}
	a.applied = true
	a.on = d.IgnitionAllowed

	if d.IgnitionAllowed {
		a.logger.Info("Ignition ON (%s): %s", d.Outcome, d.Message)
	} else {
		a.logger.Warning("Ignition OFF (%s): %s", d.Outcome, d.Message)
	}
	return nil
}

func (a *LogActuator) Close() error {
	return nil
}
