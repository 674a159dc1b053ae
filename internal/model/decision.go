package model

import "time"

// Outcome names the branch of the decision state machine that produced a decision.
type Outcome string

const (
	OutcomeAllowed              Outcome = "ALLOWED"
	OutcomeAllowedOverride      Outcome = "ALLOWED_OVERRIDE"
	OutcomeBlockedNoDetection   Outcome = "BLOCKED_NO_DETECTION"
	OutcomeBlockedLowConfidence Outcome = "BLOCKED_LOW_CONFIDENCE"
)

// Allowed reports whether the outcome permits ignition.
func (o Outcome) Allowed() bool {
	return o == OutcomeAllowed || o == OutcomeAllowedOverride
}

// ControlDecision is produced only by the control unit from the override
// state and a DetectionResult.
type ControlDecision struct {
	IgnitionAllowed bool      `json:"ignitionAllowed"`
	Outcome         Outcome   `json:"outcome"`
	Message         string    `json:"message"`
	Override        bool      `json:"override"`
	Detected        bool      `json:"detected"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}
