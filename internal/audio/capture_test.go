package audio

import (
	"errors"
	"sync"
	"testing"

	"voicetutor/pkg/logger"
)

// fakeSource имитирует устройство: кадры подаются вручную через Push.
type fakeSource struct {
	mu         sync.Mutex
	rate       int
	acquireErr error
	onFrame    FrameFunc
	acquired   int
	released   int
	releaseErr error
	closed     bool
}

func newFakeSource(rate int) *fakeSource {
	return &fakeSource{rate: rate}
}

func (f *fakeSource) Acquire(onFrame FrameFunc) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	f.onFrame = onFrame
	return &fakeStream{src: f}, nil
}

// Push доставляет кадр как callback устройства.
func (f *fakeSource) Push(frame []float32) {
	f.mu.Lock()
	onFrame := f.onFrame
	f.mu.Unlock()
	if onFrame != nil {
		onFrame(frame)
	}
}

func (f *fakeSource) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeStream struct {
	src *fakeSource
}

func (s *fakeStream) SampleRate() int {
	return s.src.rate
}

func (s *fakeStream) Release() error {
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	s.src.released++
	return s.src.releaseErr
}

func frame(n int, v float32) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestSessionThreeFrames(t *testing.T) {
	src := newFakeSource(44100)
	s := NewSession(src, logger.Nop())

	h, err := s.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		src.Push(frame(4096, 0.25))
	}

	clip, err := s.Stop(h)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	info, err := ParseWAV(clip)
	if err != nil {
		t.Fatalf("ParseWAV failed: %v", err)
	}
	if info.DataLength != 24576 {
		t.Errorf("Expected data length 24576, got %d", info.DataLength)
	}
	if info.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", info.SampleRate)
	}
	if src.Releases() != 1 {
		t.Errorf("Expected 1 release, got %d", src.Releases())
	}
}

func TestSessionKeepsFrameOrder(t *testing.T) {
	src := newFakeSource(8000)
	s := NewSession(src, logger.Nop())

	h, _ := s.Start()
	src.Push([]float32{1})
	src.Push([]float32{-1, 0})

	clip, err := s.Stop(h)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	want, _ := EncodeWAV([]float32{1, -1, 0}, 8000)
	if string(clip) != string(want) {
		t.Error("Frames were not encoded in arrival order")
	}
}

func TestSessionSecondStartIsBusy(t *testing.T) {
	src := newFakeSource(16000)
	s := NewSession(src, logger.Nop())

	h, err := s.Start()
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := s.Start(); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("Expected ErrDeviceBusy, got %v", err)
	}

	src.Push(frame(10, 0.1))
	if _, err := s.Stop(h); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if src.Releases() != 1 {
		t.Errorf("Expected device released once, got %d", src.Releases())
	}

	// После Stop устройство снова свободно
	h2, err := s.Start()
	if err != nil {
		t.Fatalf("Start after Stop failed: %v", err)
	}
	_ = s.Abandon(h2)
}

func TestSessionStopInvalidHandle(t *testing.T) {
	src := newFakeSource(16000)
	s := NewSession(src, logger.Nop())

	if _, err := s.Stop(nil); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle for nil handle, got %v", err)
	}

	h, _ := s.Start()
	src.Push(frame(4, 0.5))
	if _, err := s.Stop(h); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := s.Stop(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle on second Stop, got %v", err)
	}

	other := NewSession(newFakeSource(16000), logger.Nop())
	foreign, _ := other.Start()
	if _, err := s.Stop(foreign); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle for foreign handle, got %v", err)
	}

	if src.Releases() != 1 {
		t.Errorf("Expected 1 release, got %d", src.Releases())
	}
}

func TestSessionEmptyRecordingReleasesDevice(t *testing.T) {
	src := newFakeSource(16000)
	s := NewSession(src, logger.Nop())

	h, _ := s.Start()
	if _, err := s.Stop(h); !errors.Is(err, ErrEmptyBuffer) {
		t.Fatalf("Expected ErrEmptyBuffer, got %v", err)
	}
	if src.Releases() != 1 {
		t.Errorf("Expected device released before encode failure, got %d releases", src.Releases())
	}
	if s.IsRecording() {
		t.Error("Session still recording after Stop")
	}
}

func TestSessionDropsLateFrames(t *testing.T) {
	src := newFakeSource(8000)
	s := NewSession(src, logger.Nop())

	h, _ := s.Start()
	src.Push(frame(100, 0.1))
	clip, err := s.Stop(h)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Кадр пришёл после остановки
	src.Push(frame(100, 0.1))

	info, _ := ParseWAV(clip)
	if info.Samples() != 100 {
		t.Errorf("Expected 100 samples, got %d", info.Samples())
	}
	if h.frames != 1 {
		t.Errorf("Expected 1 accepted frame, got %d", h.frames)
	}
}

func TestSessionDeviceUnavailable(t *testing.T) {
	src := newFakeSource(16000)
	src.acquireErr = errors.New("permission denied")
	s := NewSession(src, logger.Nop())

	if _, err := s.Start(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if s.IsRecording() {
		t.Error("Failed Start left the device reserved")
	}

	src.acquireErr = nil
	h, err := s.Start()
	if err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	_ = s.Abandon(h)
}

func TestSessionReleaseErrorStillEncodes(t *testing.T) {
	src := newFakeSource(8000)
	src.releaseErr = errors.New("device gone")
	s := NewSession(src, logger.Nop())

	h, _ := s.Start()
	src.Push(frame(8, 0.2))
	if _, err := s.Stop(h); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSessionLevelAndClose(t *testing.T) {
	src := newFakeSource(8000)
	s := NewSession(src, logger.Nop())

	h, _ := s.Start()
	src.Push(frame(16, 0.5))
	if lvl := s.Level(); lvl < 0.49 || lvl > 0.51 {
		t.Errorf("Expected level ~0.5, got %v", lvl)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if src.Releases() != 1 {
		t.Errorf("Close did not release the live recording")
	}
	if !src.closed {
		t.Error("Close did not close the source")
	}
	if _, err := s.Stop(h); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Expected ErrInvalidHandle after Close, got %v", err)
	}
}
