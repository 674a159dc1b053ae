package model

import "time"

// DetectionResult is the outcome of classifying a single frame.
type DetectionResult struct {
	Detected   bool      `json:"detected"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewDetectionResult builds a result with confidence clamped to [0,1].
func NewDetectionResult(detected bool, confidence float64, ts time.Time) DetectionResult {
	return DetectionResult{
		Detected:   detected,
		Confidence: ClampConfidence(confidence),
		Timestamp:  ts,
	}
}

// SafeDefault is the result used when classification could not be performed.
func SafeDefault(ts time.Time) DetectionResult {
	return DetectionResult{Detected: false, Confidence: 0, Timestamp: ts}
}

// ClampConfidence forces c into [0,1]. NaN maps to 0.
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
