package camera

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
)

// readErrorLogEvery limits how often a streak of read failures is logged.
const readErrorLogEvery = 50

// Options configure a FrameSource.
type Options struct {
	Source       string // label reported in status, e.g. "device" or "udp"
	PrimaryID    int
	FallbackID   int
	Settings     Settings
	RetryBackoff time.Duration
	StopTimeout  time.Duration
}

// FrameSource owns a capture device and keeps only the most recent frame.
type FrameSource struct {
	open    Opener
	encoder Encoder
	opts    Options
	logger  *logger.Logger

	mu     sync.Mutex // serializes Start and Stop
	stopCh chan struct{}
	done   chan struct{}

	running    atomic.Bool
	deviceID   atomic.Int64
	latest     atomic.Pointer[model.Frame]
	seq        atomic.Uint64
	captured   atomic.Uint64
	readErrors atomic.Uint64
}

// NewFrameSource creates a stopped frame source.
func NewFrameSource(open Opener, encoder Encoder, opts Options, logger *logger.Logger) *FrameSource {
	s := &FrameSource{
		open:    open,
		encoder: encoder,
		opts:    opts,
		logger:  logger,
	}
	s.deviceID.Store(int64(opts.PrimaryID))
	return s
}

// Start acquires the device and launches the capture goroutine. It returns as
// soon as the device is open and does not wait for a first frame. Starting a
// running source is a no-op.
func (s *FrameSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return fmt.Errorf("%w: device %d is still held by a previous capture", model.ErrDeviceUnavailable, s.deviceID.Load())
		}
	}

	dev, id, err := s.acquire()
	if err != nil {
		return err
	}

	s.deviceID.Store(int64(id))
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.captureLoop(dev, s.stopCh, s.done)

	s.logger.Info("Camera %d started (%s, %dx%d@%d)", id, s.opts.Source, s.opts.Settings.Width, s.opts.Settings.Height, s.opts.Settings.FPS)
	return nil
}

// acquire tries the primary id, then the fallback id.
func (s *FrameSource) acquire() (Device, int, error) {
	dev, err := s.open(s.opts.PrimaryID, s.opts.Settings)
	if err == nil {
		return dev, s.opts.PrimaryID, nil
	}
	if s.opts.FallbackID == s.opts.PrimaryID {
		return nil, 0, fmt.Errorf("%w: camera %d: %v", model.ErrDeviceUnavailable, s.opts.PrimaryID, err)
	}

	s.logger.Warning("Camera %d failed (%v), trying camera %d", s.opts.PrimaryID, err, s.opts.FallbackID)
	dev, fallbackErr := s.open(s.opts.FallbackID, s.opts.Settings)
	if fallbackErr != nil {
		return nil, 0, fmt.Errorf("%w: camera %d: %v; camera %d: %v",
			model.ErrDeviceUnavailable, s.opts.PrimaryID, err, s.opts.FallbackID, fallbackErr)
	}
	return dev, s.opts.FallbackID, nil
}

// captureLoop owns dev and closes it on exit.
func (s *FrameSource) captureLoop(dev Device, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := dev.Close(); err != nil {
			s.logger.Warning("Failed to release camera %d: %v", s.deviceID.Load(), err)
		}
	}()

	var streak uint64
	for s.running.Load() {
		frame, err := dev.Read()
		if err != nil {
			s.readErrors.Add(1)
			streak++
			if streak == 1 || streak%readErrorLogEvery == 0 {
				s.logger.Warning("Failed to read frame from camera %d (%d in a row): %v", s.deviceID.Load(), streak, err)
			}

			select {
			case <-stop:
				return
			case <-time.After(s.opts.RetryBackoff):
			}
			continue
		}

		if streak > 0 {
			s.logger.Info("Camera %d recovered after %d failed reads", s.deviceID.Load(), streak)
			streak = 0
		}

		frame.Seq = s.seq.Add(1)
		frame.CapturedAt = time.Now()
		s.latest.Store(&frame)
		s.captured.Add(1)
	}
}

// Stop signals the capture goroutine and waits up to the stop timeout for it
// to release the device. Safe to call when never started.
//
// A device read that is in flight when Stop is called delays the exit by up
// to one read timeout; if the wait expires, the device is released by the
// goroutine once that read returns and Stop reports an error.
func (s *FrameSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}
	close(s.stopCh)

	select {
	case <-s.done:
		s.logger.Info("Camera %d stopped", s.deviceID.Load())
		return nil
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warning("Camera %d capture did not exit within %v", s.deviceID.Load(), s.opts.StopTimeout)
		return fmt.Errorf("camera %d: capture did not exit within %v", s.deviceID.Load(), s.opts.StopTimeout)
	}
}

// LatestFrame returns the most recent frame, if any has been captured.
func (s *FrameSource) LatestFrame() (model.Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return model.Frame{}, false
	}
	return *f, true
}

// EncodedSnapshot encodes the latest frame on demand.
func (s *FrameSource) EncodedSnapshot() ([]byte, error) {
	f := s.latest.Load()
	if f == nil {
		return nil, model.ErrNoFrame
	}
	data, err := s.encoder.Encode(*f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", f.Seq, err)
	}
	return data, nil
}

// Status reports the capture state.
func (s *FrameSource) Status() model.CameraStatus {
	status := model.CameraStatus{
		Running:        s.running.Load(),
		Source:         s.opts.Source,
		DeviceID:       int(s.deviceID.Load()),
		FramesCaptured: s.captured.Load(),
		ReadErrors:     s.readErrors.Load(),
	}
	if f := s.latest.Load(); f != nil {
		status.LastFrameAt = f.CapturedAt
	}
	return status
}
