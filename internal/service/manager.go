// Package service runs the capture, decision and viewer tasks.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/metrics"
	"ignitiongate/internal/model"
	"ignitiongate/internal/repository"
	"ignitiongate/internal/service/actuator"
	"ignitiongate/internal/service/ai"
	"ignitiongate/internal/service/camera"
	"ignitiongate/internal/service/control"
	"ignitiongate/internal/service/evidence"
	"ignitiongate/internal/service/status"
	"ignitiongate/internal/service/websocket"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// FrameSource is the capture side of the pipeline; *camera.FrameSource
// implements it.
type FrameSource interface {
	Start() error
	Stop() error
	LatestFrame() (model.Frame, bool)
	EncodedSnapshot() ([]byte, error)
	Status() model.CameraStatus
}

// Dependencies are the components a Manager owns. Hub, Evidence, Audit and
// Metrics are optional.
type Dependencies struct {
	Camera   FrameSource
	Encoder  camera.Encoder
	Detector ai.Detector
	Control  *control.Unit
	Status   *status.Publisher
	Actuator actuator.Actuator
	Audit    repository.AuditRepository
	Hub      *websocket.Hub
	Evidence *evidence.Buffer
	Metrics  *metrics.Metrics
}

type Options struct {
	DecisionInterval time.Duration
	StreamInterval   time.Duration
	StopTimeout      time.Duration
	MaxFrameAge      time.Duration // 0 disables the stale-frame check
}

// Manager owns the pipeline components and runs the decision and stream
// tasks between Start and Stop.
type Manager struct {
	deps   Dependencies
	opts   Options
	logger *logger.Logger

	mu      sync.Mutex // serializes Start, Stop and Close
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	running atomic.Bool
	runID   atomic.Value // string

	// publishMu orders decisions, override toggles and snapshot builds so a
	// published snapshot never carries an older decision than its predecessor.
	publishMu    sync.Mutex
	lastDecision *model.ControlDecision // guarded by publishMu
	processed    atomic.Uint64          // written under publishMu

	lastOutcome model.Outcome // decision task only
}

// NewManager validates the dependencies and publishes the idle snapshot.
func NewManager(deps Dependencies, opts Options, logger *logger.Logger) (*Manager, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"camera", deps.Camera != nil},
		{"encoder", deps.Encoder != nil},
		{"detector", deps.Detector != nil},
		{"control", deps.Control != nil},
		{"status", deps.Status != nil},
		{"actuator", deps.Actuator != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, &model.ConfigurationError{Key: r.name, Value: nil, Reason: "component is required"}
		}
	}
	if opts.DecisionInterval <= 0 || opts.StreamInterval <= 0 || opts.StopTimeout <= 0 {
		return nil, &model.ConfigurationError{Key: "intervals", Value: opts, Reason: "decision, stream and stop intervals must be positive"}
	}

	m := &Manager{deps: deps, opts: opts, logger: logger}
	m.runID.Store("")
	m.publish("System not started")
	return m, nil
}

// Start starts the camera and launches the decision and stream tasks. It
// fails with model.ErrDeviceUnavailable when no camera could be opened, in
// which case the system stays stopped. Starting a running system is a no-op.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("system is closed")
	}
	if m.running.Load() {
		return nil
	}
	if m.done != nil {
		select {
		case <-m.done:
		default:
			return errors.New("previous run is still shutting down")
		}
	}

	if err := m.deps.Camera.Start(); err != nil {
		m.logger.Error("Failed to start camera: %v", err)
		m.publish(fmt.Sprintf("Failed to start: %v", err))
		return err
	}

	runID := uuid.NewString()
	m.runID.Store(runID)
	m.running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.decisionLoop(gctx) })
	if m.deps.Hub != nil {
		g.Go(func() error { return m.streamLoop(gctx) })
	}

	done := make(chan struct{})
	go func() {
		if err := g.Wait(); err != nil {
			m.logger.Error("Run %s ended with error: %v", runID, err)
		}
		close(done)
	}()
	m.cancel = cancel
	m.done = done

	m.logger.Info("System started, run %s", runID)
	m.publish("System started")
	return nil
}

// Stop cancels the tasks, waits up to the stop timeout for them, then stops
// the camera, which releases the device before Stop returns unless a device
// read is stuck. Safe to call when not running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running.Swap(false) {
		return nil
	}
	m.cancel()

	var errs []error
	select {
	case <-m.done:
	case <-time.After(m.opts.StopTimeout):
		errs = append(errs, fmt.Errorf("pipeline tasks did not exit within %v", m.opts.StopTimeout))
	}
	if err := m.deps.Camera.Stop(); err != nil {
		errs = append(errs, err)
	}

	m.logger.Info("System stopped, run %s", m.currentRunID())
	m.runID.Store("")
	m.publish("System stopped")
	return errors.Join(errs...)
}

// Close stops the pipeline and releases every owned component.
func (m *Manager) Close() error {
	errs := []error{m.Stop()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.Join(errs...)
	}
	m.closed = true

	errs = append(errs, m.deps.Detector.Close(), m.deps.Actuator.Close())
	if m.deps.Audit != nil {
		errs = append(errs, m.deps.Audit.Close())
	}
	return errors.Join(errs...)
}

// Status returns the latest published snapshot.
func (m *Manager) Status() model.SystemStatus {
	return m.deps.Status.Current()
}

// LatestEncodedFrame returns the newest frame as JPEG, or model.ErrNoFrame.
func (m *Manager) LatestEncodedFrame() ([]byte, error) {
	return m.deps.Camera.EncodedSnapshot()
}

// ToggleOverride flips the safety override and republishes the snapshot.
func (m *Manager) ToggleOverride() (bool, string) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	enabled, message := m.deps.Control.ToggleOverride()
	m.publishLocked(message)
	return enabled, message
}

func (m *Manager) RecentLogs(n int) []string {
	return m.deps.Control.RecentLogs(n)
}

// AuditTrail returns up to limit of the newest audit records, oldest first.
func (m *Manager) AuditTrail(limit int) ([]model.AuditRecord, error) {
	if m.deps.Audit == nil {
		return nil, fmt.Errorf("%w: no audit store configured", model.ErrAuditIO)
	}
	return m.deps.Audit.Recent(limit)
}

func (m *Manager) Running() bool {
	return m.running.Load()
}

func (m *Manager) currentRunID() string {
	id, _ := m.runID.Load().(string)
	return id
}

func (m *Manager) decisionLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.DecisionInterval)
	defer ticker.Stop()

	for m.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
	return nil
}

// runCycle decides on whichever frame is latest. No frame means no decision.
func (m *Manager) runCycle(ctx context.Context) {
	frame, ok := m.deps.Camera.LatestFrame()
	if !ok {
		m.deps.Metrics.CycleSkipped()
		return
	}

	var result model.DetectionResult
	if age := time.Since(frame.CapturedAt); m.opts.MaxFrameAge > 0 && age > m.opts.MaxFrameAge {
		m.logger.Warning("Frame %d is %v old, deciding as not detected", frame.Seq, age.Round(time.Millisecond))
		result = model.SafeDefault(time.Now())
	} else {
		result = m.classify(ctx, frame)
	}

	decision := m.decide(result)
	m.deps.Metrics.ObserveDecision(decision)

	if err := m.deps.Actuator.Apply(ctx, decision); err != nil {
		m.deps.Metrics.ActuatorFailed()
		m.logger.Error("Actuator failed to apply %s: %v", decision.Outcome, err)
	}

	if decision.Outcome != m.lastOutcome {
		m.recordEvidence(frame, decision)
		m.lastOutcome = decision.Outcome
	}
}

// decide runs the control unit and publishes its decision as one step with
// respect to other publishers.
func (m *Manager) decide(result model.DetectionResult) model.ControlDecision {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	decision := m.deps.Control.CheckAndControl(result)
	m.processed.Add(1)
	m.lastDecision = &decision
	m.publishLocked(decision.Message)
	return decision
}

// classify never fails: errors and panics in the detector become the safe default.
func (m *Manager) classify(ctx context.Context, frame model.Frame) (result model.DetectionResult) {
	defer func() {
		if r := recover(); r != nil {
			m.deps.Metrics.InferenceFailed()
			m.logger.Error("Detector panicked on frame %d: %v", frame.Seq, r)
			result = model.SafeDefault(time.Now())
		}
	}()

	res, err := m.deps.Detector.Classify(ctx, frame)
	if err != nil {
		m.deps.Metrics.InferenceFailed()
		m.logger.Warning("Classification of frame %d failed, using safe default: %v", frame.Seq, err)
		return model.SafeDefault(time.Now())
	}
	return res
}

func (m *Manager) recordEvidence(frame model.Frame, decision model.ControlDecision) {
	if m.deps.Evidence == nil {
		return
	}
	data, err := m.deps.Encoder.Encode(frame)
	if err != nil {
		m.logger.Warning("Failed to encode evidence for frame %d: %v", frame.Seq, err)
		return
	}
	if !m.deps.Evidence.Add(data, decision.Outcome, decision.Timestamp) {
		m.logger.Warning("Evidence buffer full, dropped snapshot for %s", decision.Outcome)
	}
}

// publish builds and publishes a snapshot from the components' current state.
func (m *Manager) publish(message string) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	m.publishLocked(message)
}

func (m *Manager) publishLocked(message string) {
	m.deps.Status.Publish(model.SystemStatus{
		Active:       m.running.Load(),
		RunID:        m.currentRunID(),
		Message:      message,
		Camera:       m.deps.Camera.Status(),
		Detector:     m.deps.Detector.Status(),
		Controller:   m.deps.Control.Status(),
		LastDecision: m.lastDecision,
		FrameCount:   m.processed.Load(),
		Timestamp:    time.Now(),
	})
}

// viewerStatus is the text message pushed to viewers.
type viewerStatus struct {
	Type   string             `json:"type"`
	Status model.SystemStatus `json:"status"`
}

// streamLoop pushes the snapshot and the newest frame to viewers, each only
// when it changed and only while someone is watching.
func (m *Manager) streamLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.StreamInterval)
	defer ticker.Stop()

	var lastVersion, lastSeq uint64
	for m.running.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if m.deps.Hub.ClientCount() == 0 {
			continue
		}

		if v := m.deps.Status.Version(); v != lastVersion {
			payload, err := json.Marshal(viewerStatus{Type: "status", Status: m.deps.Status.Current()})
			if err != nil {
				return fmt.Errorf("failed to marshal status: %w", err)
			}
			if m.deps.Hub.Broadcast(websocket.Message{Type: gorilla.TextMessage, Data: payload}) {
				lastVersion = v
			} else {
				m.deps.Metrics.BroadcastDropped()
			}
		}

		frame, ok := m.deps.Camera.LatestFrame()
		if !ok || frame.Seq == lastSeq {
			continue
		}
		data, err := m.deps.Encoder.Encode(frame)
		if err != nil {
			m.logger.Warning("Failed to encode frame %d for viewers: %v", frame.Seq, err)
			continue
		}
		if m.deps.Hub.Broadcast(websocket.Message{Type: gorilla.BinaryMessage, Data: data}) {
			lastSeq = frame.Seq
		} else {
			m.deps.Metrics.BroadcastDropped()
		}
	}
	return nil
}
