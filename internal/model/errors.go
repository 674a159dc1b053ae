package model

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable means no capture device could be opened on any configured id.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrRead is a transient failure reading one frame.
	ErrRead = errors.New("frame read failed")
	// ErrNoFrame is returned to readers before the first frame has been captured.
	ErrNoFrame = errors.New("no frame captured yet")
	// ErrModelLoad means the inference backend could not load its model.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference is an internal fault while classifying a frame.
	ErrInference = errors.New("inference failed")
	// ErrAuditIO is a failure appending to or reading the audit store.
	ErrAuditIO = errors.New("audit store i/o failed")
)

// ConfigurationError reports an invalid setting. It is fatal at construction.
type ConfigurationError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Key, e.Value, e.Reason)
}
