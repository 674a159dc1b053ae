package camera

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"
)

// ========================================
// Test doubles
// ========================================

type fakeDevice struct {
	id        int
	failFirst int // number of reads that fail before frames flow
	block     chan struct{}

	reads  atomic.Int64
	closed atomic.Bool
}

func (d *fakeDevice) Read() (model.Frame, error) {
	n := d.reads.Add(1)
	if d.block != nil {
		<-d.block
	}
	time.Sleep(2 * time.Millisecond)
	if int(n) <= d.failFirst {
		return model.Frame{}, fmt.Errorf("%w: simulated", model.ErrRead)
	}
	return model.Frame{Format: model.FormatBGR24, Width: 2, Height: 1, Data: []byte{1, 2, 3, 4, 5, 6}}, nil
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	fail    map[int]bool
	opened  []*fakeDevice
	newFunc func(id int) *fakeDevice
}

func (o *fakeOpener) Open(id int, _ Settings) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[id] {
		return nil, fmt.Errorf("%w: camera %d missing", model.ErrDeviceUnavailable, id)
	}
	dev := &fakeDevice{id: id}
	if o.newFunc != nil {
		dev = o.newFunc(id)
	}
	o.opened = append(o.opened, dev)
	return dev, nil
}

func (o *fakeOpener) devices() []*fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeDevice(nil), o.opened...)
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(f model.Frame) ([]byte, error) {
	return []byte(fmt.Sprintf("frame-%d", f.Seq)), nil
}

func testOptions() Options {
	return Options{
		Source:       "test",
		PrimaryID:    0,
		FallbackID:   1,
		Settings:     Settings{Width: 2, Height: 1, FPS: 30, ReadTimeout: 50 * time.Millisecond},
		RetryBackoff: 5 * time.Millisecond,
		StopTimeout:  time.Second,
	}
}

func waitForFrame(t *testing.T, s *FrameSource, minSeq uint64) model.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := s.LatestFrame(); ok && f.Seq >= minSeq {
			return f
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no frame with seq >= %d within deadline", minSeq)
	return model.Frame{}
}

// ========================================
// FrameSource Tests
// ========================================

func TestFrameSource_NoFrameBeforeCapture(t *testing.T) {
	opener := &fakeOpener{}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	if _, ok := s.LatestFrame(); ok {
		t.Error("Expected no frame before start")
	}
	if _, err := s.EncodedSnapshot(); !errors.Is(err, model.ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame, got %v", err)
	}
	if s.Status().Running {
		t.Error("Source should not be running")
	}
}

func TestFrameSource_CapturesFrames(t *testing.T) {
	opener := &fakeOpener{}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	first := waitForFrame(t, s, 1)
	if first.Seq < 1 {
		t.Errorf("Expected seq >= 1, got %d", first.Seq)
	}
	if first.CapturedAt.IsZero() {
		t.Error("Expected capture timestamp")
	}

	second := waitForFrame(t, s, first.Seq+1)
	if second.Seq <= first.Seq {
		t.Errorf("Sequence not increasing: %d then %d", first.Seq, second.Seq)
	}

	data, err := s.EncodedSnapshot()
	if err != nil {
		t.Fatalf("EncodedSnapshot failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected encoded bytes")
	}

	status := s.Status()
	if !status.Running || status.DeviceID != 0 || status.FramesCaptured == 0 {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestFrameSource_StartTwiceKeepsOneCaptureTask(t *testing.T) {
	opener := &fakeOpener{}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	defer s.Stop()

	if n := len(opener.devices()); n != 1 {
		t.Errorf("Expected one device acquisition, got %d", n)
	}
}

func TestFrameSource_FallsBackToAlternateDevice(t *testing.T) {
	opener := &fakeOpener{fail: map[int]bool{0: true}}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if id := s.Status().DeviceID; id != 1 {
		t.Errorf("Expected fallback device 1, got %d", id)
	}
}

func TestFrameSource_DeviceUnavailable(t *testing.T) {
	opener := &fakeOpener{fail: map[int]bool{0: true, 1: true}}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	err := s.Start()
	if !errors.Is(err, model.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if s.Status().Running {
		t.Error("Source must stay stopped after failed start")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop after failed start: %v", err)
	}
}

func TestFrameSource_ReadErrorsAreRetried(t *testing.T) {
	opener := &fakeOpener{newFunc: func(id int) *fakeDevice {
		return &fakeDevice{id: id, failFirst: 3}
	}}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	waitForFrame(t, s, 1)
	if n := s.Status().ReadErrors; n != 3 {
		t.Errorf("Expected 3 read errors, got %d", n)
	}
}

func TestFrameSource_StopWithoutStart(t *testing.T) {
	s := NewFrameSource((&fakeOpener{}).Open, fakeEncoder{}, testOptions(), logger.Discard())
	if err := s.Stop(); err != nil {
		t.Errorf("Stop on idle source: %v", err)
	}
}

func TestFrameSource_StopReleasesDeviceForRestart(t *testing.T) {
	opener := &fakeOpener{}
	s := NewFrameSource(opener.Open, fakeEncoder{}, testOptions(), logger.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := waitForFrame(t, s, 1)

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > testOptions().StopTimeout {
		t.Errorf("Stop took %v", elapsed)
	}

	devices := opener.devices()
	if !devices[0].closed.Load() {
		t.Fatal("Device must be released when Stop returns")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	defer s.Stop()

	after := waitForFrame(t, s, before.Seq+1)
	if after.Seq <= before.Seq {
		t.Errorf("Sequence must keep increasing across restarts: %d then %d", before.Seq, after.Seq)
	}
	if n := len(opener.devices()); n != 2 {
		t.Errorf("Expected device to be reacquired, opened %d times", n)
	}
}

func TestFrameSource_StuckReadDelaysRelease(t *testing.T) {
	release := make(chan struct{})
	opener := &fakeOpener{newFunc: func(id int) *fakeDevice {
		return &fakeDevice{id: id, block: release}
	}}
	opts := testOptions()
	opts.StopTimeout = 30 * time.Millisecond
	s := NewFrameSource(opener.Open, fakeEncoder{}, opts, logger.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := s.Stop(); err == nil {
		t.Fatal("Expected Stop to report the stuck read")
	}
	if err := s.Start(); !errors.Is(err, model.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable while device is held, got %v", err)
	}

	close(release)
	dev := opener.devices()[0]
	deadline := time.Now().Add(time.Second)
	for !dev.closed.Load() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if !dev.closed.Load() {
		t.Fatal("Device should be released once the read returns")
	}

	opener.newFunc = nil
	if err := s.Start(); err != nil {
		t.Fatalf("Start after release failed: %v", err)
	}
	s.Stop()
}
