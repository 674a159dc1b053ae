package camera

import (
	"time"

	"ignitiongate/internal/model"
)

// Settings are applied to a device when it is opened.
type Settings struct {
	Width       int
	Height      int
	FPS         int
	ReadTimeout time.Duration
}

// Device is an opened capture device. Read blocks for at most the configured
// read timeout and returns a frame without Seq/CapturedAt; failures wrap
// model.ErrRead. Read and Close are only called from the capture goroutine.
type Device interface {
	Read() (model.Frame, error)
	Close() error
}

// Opener acquires the device with the given id. Failures wrap model.ErrDeviceUnavailable.
type Opener func(id int, settings Settings) (Device, error)

// Encoder turns a frame into bytes suitable for streaming.
type Encoder interface {
	Encode(frame model.Frame) ([]byte, error)
}
