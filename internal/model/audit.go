package model

import (
	"fmt"
	"strconv"
	"time"
)

// AuditTimeLayout is the timestamp format of persisted audit records.
const AuditTimeLayout = "2006-01-02 15:04:05"

// AuditColumns is the fixed column order of the audit log.
var AuditColumns = []string{"timestamp", "detection_outcome", "confidence", "ignition_status", "override_status"}

// AuditRecord is one immutable row of the audit log; one per decision.
type AuditRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Detected   bool      `json:"detected"`
	Confidence float64   `json:"confidence"`
	IgnitionOn bool      `json:"ignitionOn"`
	Override   bool      `json:"override"`
}

// AuditRecordFor captures a decision as an audit row.
func AuditRecordFor(d ControlDecision) AuditRecord {
	return AuditRecord{
		Timestamp:  d.Timestamp,
		Detected:   d.Detected,
		Confidence: d.Confidence,
		IgnitionOn: d.IgnitionAllowed,
		Override:   d.Override,
	}
}

// Row renders the record in AuditColumns order.
func (r AuditRecord) Row() []string {
	return []string{
		r.Timestamp.Format(AuditTimeLayout),
		yesNo(r.Detected),
		strconv.FormatFloat(ClampConfidence(r.Confidence), 'f', 2, 64),
		onOff(r.IgnitionOn),
		yesNo(r.Override),
	}
}

// ParseAuditRow is the inverse of Row. Timestamps are read in loc.
func ParseAuditRow(row []string, loc *time.Location) (AuditRecord, error) {
	if len(row) != len(AuditColumns) {
		return AuditRecord{}, fmt.Errorf("expected %d columns, got %d", len(AuditColumns), len(row))
	}

	ts, err := time.ParseInLocation(AuditTimeLayout, row[0], loc)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
	}
	detected, err := parseFlag(row[1], "YES", "NO")
	if err != nil {
		return AuditRecord{}, fmt.Errorf("invalid detection outcome: %w", err)
	}
	confidence, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("invalid confidence %q: %w", row[2], err)
	}
	ignition, err := parseFlag(row[3], "ON", "OFF")
	if err != nil {
		return AuditRecord{}, fmt.Errorf("invalid ignition status: %w", err)
	}
	override, err := parseFlag(row[4], "YES", "NO")
	if err != nil {
		return AuditRecord{}, fmt.Errorf("invalid override status: %w", err)
	}

	return AuditRecord{
		Timestamp:  ts,
		Detected:   detected,
		Confidence: ClampConfidence(confidence),
		IgnitionOn: ignition,
		Override:   override,
	}, nil
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func parseFlag(v, yes, no string) (bool, error) {
	switch v {
	case yes:
		return true, nil
	case no:
		return false, nil
	}
	return false, fmt.Errorf("%q is neither %s nor %s", v, yes, no)
}
