// Package session управляет циклом речь-ответ: запись по жесту,
// отправка реплики тьютору и выдача ответа.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicetutor/internal/audio"
	"voicetutor/internal/clip"
	"voicetutor/internal/i18n"
	"voicetutor/internal/metrics"
	"voicetutor/internal/tutor"
	"voicetutor/pkg/logger"
)

// Phase - фаза цикла.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseProcessing
	PhaseReady
	PhaseError
)

var phaseNames = []string{"idle", "recording", "processing", "ready", "error"}

func (p Phase) String() string {
	if int(p) < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// ErrTooShort - запись короче Options.MinRecording.
var ErrTooShort = errors.New("запись слишком короткая")

// State - снимок состояния для отображения.
type State struct {
	Phase   Phase
	Reply   *tutor.Reply // только в PhaseReady
	Message string       // текст для пользователя в PhaseError
	Err     error
	Cycle   uuid.UUID // идентификатор текущего цикла, нулевой в PhaseIdle
	Changed time.Time
}

// Recorder - запись с микрофона (audio.Session).
type Recorder interface {
	Start() (*audio.Handle, error)
	Stop(h *audio.Handle) ([]byte, error)
	Abandon(h *audio.Handle) error
	Level() float32
}

// Tutor - отправка реплики (tutor.Client).
type Tutor interface {
	Submit(ctx context.Context, payload string) (tutor.Reply, error)
}

// Player - воспроизведение ответа (audio.Player).
type Player interface {
	Play(data []byte, format clip.Format) error
}

// Options - необязательные параметры контроллера.
type Options struct {
	// MinRecording - записи короче отбрасываются без запроса к модели. 0 отключает проверку.
	MinRecording time.Duration
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

// Controller - конечный автомат цикла. Переходы сериализованы мьютексом.
type Controller struct {
	mu       sync.Mutex
	recorder Recorder
	tutor    Tutor
	player   Player
	opts     Options
	metrics  *metrics.Metrics
	logger   *logger.Logger

	state    State
	handle   *audio.Handle
	starting bool // устройство открывается без c.mu
	stopSent bool // StopGesture пришёл во время открытия
	subs     map[int]chan State
	nextSub  int
	closed   bool
	inflight sync.WaitGroup
}

// New создаёт контроллер в фазе Idle.
func New(recorder Recorder, t Tutor, player Player, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Controller{
		recorder: recorder,
		tutor:    t,
		player:   player,
		opts:     opts,
		metrics:  opts.Metrics,
		logger:   log.Named("session"),
		state:    State{Phase: PhaseIdle, Changed: time.Now()},
		subs:     make(map[int]chan State),
	}
	c.metrics.SetPhase(PhaseIdle.String(), phaseNames)
	return c
}

// StartGesture начинает запись. Во время записи или обработки ничего не делает.
func (c *Controller) StartGesture() {
	c.mu.Lock()
	if c.closed || c.starting || c.state.Phase == PhaseRecording || c.state.Phase == PhaseProcessing {
		c.mu.Unlock()
		return
	}
	// Открытие устройства может занять время: State() не должен его ждать
	c.starting = true
	c.stopSent = false
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	cycle := uuid.New()
	h, err := c.recorder.Start()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if err != nil {
		c.logger.Warn("Не удалось начать запись",
			logger.String("cycle", cycle.String()),
			logger.Error(err))
		if !c.closed {
			c.setState(State{Phase: PhaseError, Message: Message(err), Err: err, Cycle: cycle})
		}
		return
	}

	if c.closed {
		if err := c.recorder.Abandon(h); err != nil {
			c.logger.Warn("Ошибка освобождения записи", logger.Error(err))
		}
		return
	}

	c.handle = h
	c.metrics.RecordRecordingStarted()
	c.logger.Info("Запись начата",
		logger.String("cycle", cycle.String()),
		logger.Uint64("handle", h.ID()))
	c.setState(State{Phase: PhaseRecording, Cycle: cycle})

	if c.stopSent {
		c.stopSent = false
		c.stop()
	}
}

// StopGesture завершает запись и отправляет реплику в фоне.
// Вне фазы Recording ничего не делает.
func (c *Controller) StopGesture() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.starting {
		c.stopSent = true
		return
	}
	c.stop()
}

// stop переводит запись в обработку. Вызывается под c.mu.
func (c *Controller) stop() {
	if c.state.Phase != PhaseRecording || c.handle == nil {
		return
	}

	h := c.handle
	c.handle = nil
	cycle := c.state.Cycle
	elapsed := time.Since(h.Started())

	c.setState(State{Phase: PhaseProcessing, Cycle: cycle})

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.process(cycle, h, elapsed)
	}()
}

// Toggle переключает запись для режима нажатие-нажатие.
func (c *Controller) Toggle() {
	c.mu.Lock()
	recording := c.state.Phase == PhaseRecording || c.starting
	c.mu.Unlock()

	if recording {
		c.StopGesture()
		return
	}
	c.StartGesture()
}

// Level возвращает уровень сигнала текущей записи, 0 вне записи.
func (c *Controller) Level() float32 {
	c.mu.Lock()
	recording := c.state.Phase == PhaseRecording
	c.mu.Unlock()

	if !recording {
		return 0
	}
	return c.recorder.Level()
}

// process: остановка записи, кодирование, запрос к модели.
func (c *Controller) process(cycle uuid.UUID, h *audio.Handle, elapsed time.Duration) {
	wav, err := c.recorder.Stop(h)
	if err != nil {
		c.metrics.RecordRecordingStopped(elapsed.Seconds(), 0)
		c.fail(cycle, err)
		return
	}

	// Длительность метрики - по фактически записанному звуку
	recorded := elapsed
	if info, err := audio.ParseWAV(wav); err == nil {
		recorded = info.Duration()
	}
	c.metrics.RecordRecordingStopped(recorded.Seconds(), len(wav))
	c.logger.Debug("Запись завершена",
		logger.String("cycle", cycle.String()),
		logger.Uint64("handle", h.ID()),
		logger.Duration("recorded", recorded),
		logger.Int("bytes", len(wav)))

	if c.opts.MinRecording > 0 && elapsed < c.opts.MinRecording {
		c.logger.Debug("Запись слишком короткая",
			logger.String("cycle", cycle.String()),
			logger.Duration("elapsed", elapsed))
		c.fail(cycle, ErrTooShort)
		return
	}

	start := time.Now()
	reply, err := c.tutor.Submit(context.Background(), clip.ToTransport(wav))
	c.metrics.RecordRoundTrip(outcome(err), time.Since(start).Seconds())
	if err != nil {
		c.fail(cycle, err)
		return
	}

	c.mu.Lock()
	if c.state.Cycle != cycle || c.state.Phase != PhaseProcessing {
		c.mu.Unlock()
		return
	}
	c.setState(State{Phase: PhaseReady, Reply: &reply, Cycle: cycle})
	c.mu.Unlock()

	c.logger.Info("Ответ тьютора",
		logger.String("cycle", cycle.String()),
		logger.String("text", reply.Text),
		logger.Bool("audio", reply.HasAudio()))

	if reply.HasAudio() && c.player != nil {
		if err := c.player.Play(reply.Audio, reply.AudioFormat); err != nil {
			c.metrics.RecordPlaybackFailure()
			c.logger.Warn("Не удалось воспроизвести ответ",
				logger.String("cycle", cycle.String()),
				logger.Error(err))
		}
	}
}

func (c *Controller) fail(cycle uuid.UUID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Cycle != cycle || c.state.Phase != PhaseProcessing {
		return
	}

	c.logger.Warn("Цикл завершился ошибкой",
		logger.String("cycle", cycle.String()),
		logger.Error(err))
	c.setState(State{Phase: PhaseError, Message: Message(err), Err: err, Cycle: cycle})
}

// setState публикует новое состояние. Вызывается под c.mu.
func (c *Controller) setState(s State) {
	s.Changed = time.Now()
	c.state = s
	c.metrics.SetPhase(s.Phase.String(), phaseNames)

	for _, ch := range c.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Подписчик не успевает: выбрасываем самое старое, последнее состояние доставляется всегда
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// State возвращает текущий снимок.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe возвращает канал изменений состояния и функцию отписки.
// Канал закрывается при отписке или Close.
func (c *Controller) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, buffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Wait блокируется, пока открывается устройство или идёт обработка реплики.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close дожидается текущего запроса, освобождает микрофон и закрывает подписки.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.handle
	c.handle = nil
	if h != nil {
		c.setState(State{Phase: PhaseIdle})
	}
	c.mu.Unlock()

	if h != nil {
		if err := c.recorder.Abandon(h); err != nil {
			c.logger.Warn("Ошибка освобождения записи", logger.Error(err))
		}
	}

	c.inflight.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Message возвращает сообщение для пользователя по классу ошибки.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrTooShort):
		return i18n.T("error_too_short")
	case errors.Is(err, tutor.ErrTimeout):
		return i18n.T("error_timeout")
	case errors.Is(err, tutor.ErrTransport):
		return i18n.T("error_transport")
	case errors.Is(err, tutor.ErrEndpoint):
		return i18n.T("error_endpoint")
	case errors.Is(err, clip.ErrMalformedPayload):
		return i18n.T("error_malformed_payload")
	case errors.Is(err, audio.ErrDeviceBusy):
		return i18n.T("error_device_busy")
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return i18n.T("error_device_unavailable")
	case errors.Is(err, audio.ErrInvalidHandle):
		return i18n.T("error_invalid_handle")
	case errors.Is(err, audio.ErrEmptyBuffer):
		return i18n.T("error_empty_recording")
	default:
		return i18n.T("error_unknown")
	}
}

// outcome - метка метрики для результата запроса.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tutor.ErrTimeout):
		return "timeout"
	case errors.Is(err, tutor.ErrTransport):
		return "transport"
	case errors.Is(err, tutor.ErrEndpoint):
		return "endpoint"
	default:
		return "error"
	}
}
