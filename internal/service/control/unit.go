// Package control holds the ignition decision state machine.
package control

import (
	"fmt"
	"sync"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
	"ignitiongate/internal/repository"
)

// LogCapacity is the number of decision lines kept in memory.
const LogCapacity = 20

// DefaultThreshold is the confidence a detection must exceed to allow ignition.
const DefaultThreshold = 0.5

// Unit decides whether ignition is permitted. The override flag, the ignition
// state, the in-memory log and the audit append are all guarded by one mutex,
// so a decision and its audit row are never interleaved with another
// decision or a toggle.
type Unit struct {
	mu         sync.Mutex
	repo       repository.AuditRepository
	threshold  float64
	logger     *logger.Logger
	now        func() time.Time
	override   bool
	ignitionOn bool
	logs       *ring[string]

	auditRecords  uint64
	auditFailures uint64
	lastAuditErr  error
}

// NewUnit creates a unit with override off and ignition off.
func NewUnit(repo repository.AuditRepository, threshold float64, logger *logger.Logger) (*Unit, error) {
	if repo == nil {
		return nil, &model.ConfigurationError{Key: "AUDIT_BACKEND", Value: nil, Reason: "audit store is required"}
	}
	if !(threshold > 0 && threshold < 1) {
		return nil, &model.ConfigurationError{Key: "IGNITION_THRESHOLD", Value: threshold, Reason: "must be within (0, 1)"}
	}
	return &Unit{
		repo:      repo,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
		logs:      newRing[string](LogCapacity),
	}, nil
}

// CheckAndControl turns a detection result into a decision. Every call
// appends exactly one audit record and one log line. A failed audit append
// is recorded in Status and does not change the decision.
func (u *Unit) CheckAndControl(result model.DetectionResult) model.ControlDecision {
	u.mu.Lock()
	defer u.mu.Unlock()

	confidence := model.ClampConfidence(result.Confidence)
	decision := model.ControlDecision{
		Override:   u.override,
		Detected:   result.Detected,
		Confidence: confidence,
		Timestamp:  u.now(),
	}

	switch {
	case u.override:
		decision.Outcome = model.OutcomeAllowedOverride
		decision.Message = "SAFETY OVERRIDE: Vehicle allowed"
	case result.Detected && confidence > u.threshold:
		decision.Outcome = model.OutcomeAllowed
		decision.Message = fmt.Sprintf("ALLOWED: Safety verified (%.0f%% confidence)", confidence*100)
	case !result.Detected:
		decision.Outcome = model.OutcomeBlockedNoDetection
		decision.Message = "BLOCKED: Safety violation - Nothing detected"
	default:
		decision.Outcome = model.OutcomeBlockedLowConfidence
		decision.Message = fmt.Sprintf("BLOCKED: Low confidence (%.0f%%)", confidence*100)
	}
	decision.IgnitionAllowed = decision.Outcome.Allowed()
	u.ignitionOn = decision.IgnitionAllowed

	u.logs.push(fmt.Sprintf("%s - Safety: %s (%.0f%%) - %s",
		decision.Timestamp.Format(model.AuditTimeLayout), passFail(result.Detected), confidence*100, decision.Outcome))

	if err := u.repo.Append(model.AuditRecordFor(decision)); err != nil {
		u.auditFailures++
		u.lastAuditErr = err
		u.logger.Error("Audit append failed, decision %s kept: %v", decision.Outcome, err)
	} else {
		u.auditRecords++
	}

	return decision
}

// ToggleOverride flips the sticky override. It applies from the next
// CheckAndControl call on.
func (u *Unit) ToggleOverride() (bool, string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.override = !u.override
	state := "OFF"
	if u.override {
		state = "ON"
	}
	u.logger.Warning("Safety override switched %s", state)
	return u.override, "Safety override: " + state
}

// RecentLogs returns up to n of the newest log lines, oldest first.
func (u *Unit) RecentLogs(n int) []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.logs.last(n)
}

// Status reports the controller state. AuditDegraded stays set once an
// append has failed, since the durable log then has a gap.
func (u *Unit) Status() model.ControllerStatus {
	u.mu.Lock()
	defer u.mu.Unlock()

	status := model.ControllerStatus{
		IgnitionOn:      u.ignitionOn,
		OverrideEnabled: u.override,
		LogCount:        u.logs.len(),
		AuditRecords:    u.auditRecords,
		AuditFailures:   u.auditFailures,
		AuditDegraded:   u.auditFailures > 0,
	}
	if u.lastAuditErr != nil {
		status.LastAuditError = u.lastAuditErr.Error()
	}
	return status
}

func passFail(detected bool) string {
	if detected {
		return "PASS"
	}
	return "FAIL"
}
