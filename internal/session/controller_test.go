package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"voicetutor/internal/audio"
	"voicetutor/internal/clip"
	"voicetutor/internal/i18n"
	"voicetutor/internal/tutor"
	"voicetutor/pkg/logger"
)

// fakeSource - устройство ввода, кадры которого подаются вручную.
type fakeSource struct {
	mu         sync.Mutex
	onFrame    audio.FrameFunc
	acquireErr error
	acquires   int
	releases   int

	// Если задан, Acquire сообщает в entered и ждёт gate.
	entered chan struct{}
	gate    chan struct{}
}

func (s *fakeSource) Acquire(onFrame audio.FrameFunc) (audio.Stream, error) {
	if s.gate != nil {
		s.entered <- struct{}{}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.acquires++
	s.onFrame = onFrame
	return &fakeStream{src: s}, nil
}

func (s *fakeSource) Push(frames, size int) {
	s.mu.Lock()
	fn := s.onFrame
	s.mu.Unlock()
	for i := 0; i < frames; i++ {
		frame := make([]float32, size)
		for j := range frame {
			frame[j] = 0.25
		}
		fn(frame)
	}
}

func (s *fakeSource) counts() (acquires, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquires, s.releases
}

type fakeStream struct {
	src *fakeSource
}

func (f *fakeStream) SampleRate() int { return 44100 }

func (f *fakeStream) Release() error {
	f.src.mu.Lock()
	defer f.src.mu.Unlock()
	f.src.releases++
	return nil
}

// fakeTutor отвечает через функцию submit.
type fakeTutor struct {
	mu       sync.Mutex
	payloads []string
	submit   func(ctx context.Context, payload string) (tutor.Reply, error)
}

func (t *fakeTutor) Submit(ctx context.Context, payload string) (tutor.Reply, error) {
	t.mu.Lock()
	t.payloads = append(t.payloads, payload)
	t.mu.Unlock()
	return t.submit(ctx, payload)
}

func (t *fakeTutor) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.payloads)
}

type fakePlayer struct {
	mu     sync.Mutex
	err    error
	played [][]byte
	format clip.Format
}

func (p *fakePlayer) Play(data []byte, format clip.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, data)
	p.format = format
	return p.err
}

func textReply(text string) func(context.Context, string) (tutor.Reply, error) {
	return func(context.Context, string) (tutor.Reply, error) {
		return tutor.Reply{Text: text}, nil
	}
}

func newController(t *testing.T, src *fakeSource, tt *fakeTutor, player *fakePlayer, opts Options) *Controller {
	t.Helper()
	opts.Logger = logger.Nop()
	c := New(audio.NewSession(src, logger.Nop()), tt, player, opts)
	t.Cleanup(c.Close)
	return c
}

func TestFullCycleReady(t *testing.T) {
	src := &fakeSource{}
	speech := []byte("speech")
	tt := &fakeTutor{submit: func(context.Context, string) (tutor.Reply, error) {
		return tutor.Reply{Text: "Bonjour", Audio: speech, AudioFormat: clip.FormatWAV}, nil
	}}
	player := &fakePlayer{}
	c := newController(t, src, tt, player, Options{})

	c.StartGesture()
	if got := c.State(); got.Phase != PhaseRecording {
		t.Fatalf("Expected Recording, got %s", got.Phase)
	}
	recording := c.State().Cycle

	src.Push(3, 4096)
	c.StopGesture()
	c.Wait()

	st := c.State()
	if st.Phase != PhaseReady {
		t.Fatalf("Expected Ready, got %s (%v)", st.Phase, st.Err)
	}
	if st.Cycle != recording {
		t.Errorf("Cycle id changed within one cycle")
	}
	if st.Reply == nil || st.Reply.Text != "Bonjour" {
		t.Errorf("Unexpected reply %+v", st.Reply)
	}

	wav, err := clip.FromTransport(tt.payloads[0])
	if err != nil {
		t.Fatalf("Payload is not base64: %v", err)
	}
	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("Payload is not WAV: %v", err)
	}
	if info.DataLength != 3*4096*2 || info.SampleRate != 44100 {
		t.Errorf("Unexpected WAV info %+v", info)
	}

	if len(player.played) != 1 || string(player.played[0]) != "speech" {
		t.Errorf("Reply audio was not played: %v", player.played)
	}
	if _, releases := src.counts(); releases != 1 {
		t.Errorf("Expected 1 release, got %d", releases)
	}
}

func TestStopBeforeAnyFrame(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: textReply("unused")}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	c.StartGesture()
	c.StopGesture()
	if got := c.State().Phase; got != PhaseProcessing && got != PhaseError {
		t.Errorf("Expected Processing right after stop, got %s", got)
	}
	c.Wait()

	st := c.State()
	if st.Phase != PhaseError {
		t.Fatalf("Expected Error, got %s", st.Phase)
	}
	if !errors.Is(st.Err, audio.ErrEmptyBuffer) {
		t.Errorf("Expected ErrEmptyBuffer, got %v", st.Err)
	}
	if st.Message != i18n.T("error_empty_recording") {
		t.Errorf("Unexpected message %q", st.Message)
	}
	if tt.calls() != 0 {
		t.Errorf("Empty recording must not be submitted")
	}
	if _, releases := src.counts(); releases != 1 {
		t.Errorf("Expected device released once, got %d", releases)
	}
}

func TestTimeoutThenNewStart(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: func(context.Context, string) (tutor.Reply, error) {
		return tutor.Reply{}, fmt.Errorf("%w: %w", tutor.ErrTimeout, context.DeadlineExceeded)
	}}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	c.StartGesture()
	src.Push(1, 512)
	c.StopGesture()
	c.Wait()

	st := c.State()
	if st.Phase != PhaseError || st.Message != i18n.T("error_timeout") {
		t.Fatalf("Expected timeout error, got %s %q", st.Phase, st.Message)
	}
	if _, releases := src.counts(); releases != 1 {
		t.Fatalf("Expected device released before the error, got %d releases", releases)
	}

	c.StartGesture()
	st = c.State()
	if st.Phase != PhaseRecording {
		t.Fatalf("Expected new recording after error, got %s", st.Phase)
	}
	if st.Err != nil || st.Reply != nil || st.Message != "" {
		t.Errorf("Previous outcome not cleared: %+v", st)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", tutor.ErrTransport), "error_transport"},
		{fmt.Errorf("%w: %w", tutor.ErrEndpoint, clip.ErrMalformedPayload), "error_endpoint"},
		{clip.ErrMalformedPayload, "error_malformed_payload"},
		{audio.ErrDeviceBusy, "error_device_busy"},
		{fmt.Errorf("%w: no device", audio.ErrDeviceUnavailable), "error_device_unavailable"},
		{audio.ErrInvalidHandle, "error_invalid_handle"},
		{ErrTooShort, "error_too_short"},
		{errors.New("boom"), "error_unknown"},
	}

	for _, tt := range tests {
		if got := Message(tt.err); got != i18n.T(tt.want) {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, i18n.T(tt.want))
		}
	}
}

func TestStartDeviceUnavailable(t *testing.T) {
	src := &fakeSource{acquireErr: errors.New("no input device")}
	tt := &fakeTutor{submit: textReply("unused")}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	c.StartGesture()

	st := c.State()
	if st.Phase != PhaseError {
		t.Fatalf("Expected Error, got %s", st.Phase)
	}
	if !errors.Is(st.Err, audio.ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", st.Err)
	}
	if st.Message != i18n.T("error_device_unavailable") {
		t.Errorf("Unexpected message %q", st.Message)
	}
}

func TestGuards(t *testing.T) {
	src := &fakeSource{}
	entered := make(chan struct{})
	release := make(chan struct{})
	tt := &fakeTutor{submit: func(context.Context, string) (tutor.Reply, error) {
		close(entered)
		<-release
		return tutor.Reply{Text: "ok"}, nil
	}}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	// Остановка без записи ничего не меняет
	before := c.State()
	c.StopGesture()
	if got := c.State(); got.Phase != PhaseIdle || !got.Changed.Equal(before.Changed) {
		t.Errorf("StopGesture in Idle changed state to %s", got.Phase)
	}

	c.StartGesture()
	c.StartGesture()
	if acquires, _ := src.counts(); acquires != 1 {
		t.Errorf("Second start during recording acquired device again (%d)", acquires)
	}

	src.Push(1, 256)
	c.StopGesture()
	<-entered

	c.StartGesture()
	c.StopGesture()
	if got := c.State().Phase; got != PhaseProcessing {
		t.Errorf("Gesture during Processing changed phase to %s", got)
	}
	if acquires, _ := src.counts(); acquires != 1 {
		t.Errorf("Start during processing acquired device (%d)", acquires)
	}

	close(release)
	c.Wait()
	if got := c.State().Phase; got != PhaseReady {
		t.Errorf("Expected Ready, got %s", got)
	}
}

func TestPlaybackFailureKeepsReady(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: func(context.Context, string) (tutor.Reply, error) {
		return tutor.Reply{Text: "hi", Audio: []byte{1, 2, 3}, AudioFormat: clip.FormatMP3}, nil
	}}
	player := &fakePlayer{err: errors.New("no output device")}
	c := newController(t, src, tt, player, Options{})

	c.StartGesture()
	src.Push(1, 256)
	c.StopGesture()
	c.Wait()

	st := c.State()
	if st.Phase != PhaseReady {
		t.Fatalf("Expected Ready despite playback failure, got %s", st.Phase)
	}
	if player.format != clip.FormatMP3 {
		t.Errorf("Expected mp3 playback, got %q", player.format)
	}
}

func TestMinRecording(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: textReply("unused")}
	c := newController(t, src, tt, &fakePlayer{}, Options{MinRecording: time.Hour})

	c.StartGesture()
	src.Push(2, 256)
	c.StopGesture()
	c.Wait()

	st := c.State()
	if st.Phase != PhaseError || !errors.Is(st.Err, ErrTooShort) {
		t.Fatalf("Expected too short error, got %s %v", st.Phase, st.Err)
	}
	if tt.calls() != 0 {
		t.Errorf("Short recording was submitted")
	}
	if _, releases := src.counts(); releases != 1 {
		t.Errorf("Expected device released once, got %d", releases)
	}
}

func TestToggle(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: textReply("ok")}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	c.Toggle()
	if got := c.State().Phase; got != PhaseRecording {
		t.Fatalf("Expected Recording, got %s", got)
	}
	src.Push(1, 256)
	c.Toggle()
	c.Wait()
	if got := c.State().Phase; got != PhaseReady {
		t.Errorf("Expected Ready, got %s", got)
	}
}

func TestSubscribe(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: textReply("ok")}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	all, unsubscribe := c.Subscribe(8)
	defer unsubscribe()
	slow, unsubscribeSlow := c.Subscribe(1)
	defer unsubscribeSlow()

	c.StartGesture()
	src.Push(1, 256)
	c.StopGesture()
	c.Wait()

	want := []Phase{PhaseRecording, PhaseProcessing, PhaseReady}
	for _, p := range want {
		select {
		case st := <-all:
			if st.Phase != p {
				t.Errorf("Expected %s, got %s", p, st.Phase)
			}
		case <-time.After(time.Second):
			t.Fatalf("No notification for %s", p)
		}
	}

	// Медленный подписчик получает последнее состояние
	select {
	case st := <-slow:
		if st.Phase != PhaseReady {
			t.Errorf("Slow subscriber got %s, want ready", st.Phase)
		}
	default:
		t.Error("Slow subscriber got nothing")
	}

	unsubscribe()
	if _, ok := <-all; ok {
		t.Error("Channel not closed after unsubscribe")
	}
}

func TestCloseDuringRecording(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: textReply("unused")}
	c := New(audio.NewSession(src, logger.Nop()), tt, &fakePlayer{}, Options{Logger: logger.Nop()})

	ch, _ := c.Subscribe(4)
	c.StartGesture()
	src.Push(1, 256)
	c.Close()

	if _, releases := src.counts(); releases != 1 {
		t.Errorf("Expected device released on close, got %d", releases)
	}
	if tt.calls() != 0 {
		t.Errorf("Abandoned recording was submitted")
	}

	for range ch {
	}

	c.StartGesture()
	if acquires, _ := src.counts(); acquires != 1 {
		t.Errorf("Start after Close acquired device")
	}
}

func TestStateDuringSlowStart(t *testing.T) {
	src := &fakeSource{entered: make(chan struct{}), gate: make(chan struct{})}
	tt := &fakeTutor{submit: textReply("unused")}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.StartGesture()
	}()
	<-src.entered

	// Устройство ещё открывается: снимок доступен, повторный старт игнорируется
	stateCh := make(chan State, 1)
	go func() { stateCh <- c.State() }()
	select {
	case st := <-stateCh:
		if st.Phase != PhaseIdle {
			t.Errorf("Expected Idle while opening device, got %s", st.Phase)
		}
	case <-time.After(time.Second):
		t.Fatal("State blocked while device was opening")
	}
	c.StartGesture()

	// Отпускание клавиши до открытия устройства
	c.StopGesture()
	close(src.gate)
	<-done
	c.Wait()

	st := c.State()
	if st.Phase != PhaseError || !errors.Is(st.Err, audio.ErrEmptyBuffer) {
		t.Fatalf("Expected empty recording after early stop, got %s (%v)", st.Phase, st.Err)
	}
	if acquires, releases := src.counts(); acquires != 1 || releases != 1 {
		t.Errorf("Expected 1 acquire and 1 release, got %d/%d", acquires, releases)
	}
}

func TestCloseDuringSlowStart(t *testing.T) {
	src := &fakeSource{entered: make(chan struct{}), gate: make(chan struct{})}
	tt := &fakeTutor{submit: textReply("unused")}
	c := New(audio.NewSession(src, logger.Nop()), tt, &fakePlayer{}, Options{Logger: logger.Nop()})

	go c.StartGesture()
	<-src.entered

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		c.Close()
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while device was opening")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.gate)
	<-closed

	if st := c.State(); st.Phase != PhaseIdle {
		t.Errorf("Expected Idle after close, got %s", st.Phase)
	}
	if acquires, releases := src.counts(); acquires != 1 || releases != 1 {
		t.Errorf("Expected device released after close, got %d/%d", acquires, releases)
	}
}

func TestLevel(t *testing.T) {
	src := &fakeSource{}
	tt := &fakeTutor{submit: textReply("ok")}
	c := newController(t, src, tt, &fakePlayer{}, Options{})

	if lvl := c.Level(); lvl != 0 {
		t.Errorf("Expected 0 before recording, got %v", lvl)
	}

	c.StartGesture()
	src.Push(1, 256)
	if lvl := c.Level(); lvl < 0.24 || lvl > 0.26 {
		t.Errorf("Expected level near 0.25, got %v", lvl)
	}

	c.StopGesture()
	c.Wait()
	if lvl := c.Level(); lvl != 0 {
		t.Errorf("Expected 0 after recording, got %v", lvl)
	}
}
