package model

import "time"

// CameraStatus is the frame source's view of itself.
type CameraStatus struct {
	Running        bool      `json:"running"`
	Source         string    `json:"source"`
	DeviceID       int       `json:"deviceId"`
	FramesCaptured uint64    `json:"framesCaptured"`
	ReadErrors     uint64    `json:"readErrors"`
	LastFrameAt    time.Time `json:"lastFrameAt"`
}

// DetectorStatus describes the classification backend.
type DetectorStatus struct {
	Backend     string           `json:"backend"`
	ModelLoaded bool             `json:"modelLoaded"`
	TotalCalls  uint64           `json:"totalCalls"`
	Failures    uint64           `json:"failures"`
	LastResult  *DetectionResult `json:"lastResult,omitempty"`
}

// ControllerStatus describes the control unit and the durability of its audit log.
type ControllerStatus struct {
	IgnitionOn      bool   `json:"ignitionOn"`
	OverrideEnabled bool   `json:"overrideEnabled"`
	LogCount        int    `json:"logCount"`
	AuditRecords    uint64 `json:"auditRecords"`
	AuditFailures   uint64 `json:"auditFailures"`
	AuditDegraded   bool   `json:"auditDegraded"`
	LastAuditError  string `json:"lastAuditError,omitempty"`
}

// SystemStatus is the aggregated snapshot published after every decision
// cycle. A published snapshot is never modified; LastDecision points to a
// value owned by that snapshot.
type SystemStatus struct {
	Active       bool             `json:"active"`
	RunID        string           `json:"runId,omitempty"`
	Message      string           `json:"message"`
	Camera       CameraStatus     `json:"camera"`
	Detector     DetectorStatus   `json:"detector"`
	Controller   ControllerStatus `json:"controller"`
	LastDecision *ControlDecision `json:"lastDecision,omitempty"`
	FrameCount   uint64           `json:"frameCount"`
	Timestamp    time.Time        `json:"timestamp"`
}
