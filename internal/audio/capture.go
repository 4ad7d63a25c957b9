// Package audio предоставляет запись с микрофона, кодирование в WAV
// и воспроизведение ответов.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"voicetutor/pkg/logger"
)

// FrameFunc получает очередной кадр сэмплов.
// Срез действителен только во время вызова.
type FrameFunc func(frame []float32)

// Source - аппаратный источник звука.
type Source interface {
	// Acquire захватывает устройство ввода и начинает доставлять кадры в onFrame.
	Acquire(onFrame FrameFunc) (Stream, error)
}

// Stream - захваченный поток устройства ввода.
type Stream interface {
	// SampleRate возвращает фактическую частоту дискретизации потока.
	SampleRate() int
	// Release останавливает поток и освобождает устройство.
	Release() error
}

// Handle - владение одной активной записью.
type Handle struct {
	id      uint64
	started time.Time
	stream  Stream
	rate    int
	samples []float32
	frames  int
	active  bool
}

// ID возвращает порядковый номер записи в сессии.
func (h *Handle) ID() uint64 {
	return h.id
}

// Started возвращает время начала записи.
func (h *Handle) Started() time.Time {
	return h.started
}

// Session записывает аудио с устройства ввода.
// Одновременно может быть активна только одна запись.
type Session struct {
	mu     sync.Mutex
	source Source
	live   *Handle
	seq    uint64
	level  float32
	logger *logger.Logger
}

// NewSession создаёт сессию записи поверх источника.
func NewSession(source Source, log *logger.Logger) *Session {
	return &Session{
		source: source,
		logger: log.Named("audio"),
	}
}

// Start захватывает устройство и начинает накапливать сэмплы.
func (s *Session) Start() (*Handle, error) {
	s.mu.Lock()
	if s.live != nil {
		s.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	s.seq++
	h := &Handle{id: s.seq, started: time.Now(), active: true}
	// Резервируем устройство до Acquire, чтобы параллельный Start получил ErrDeviceBusy
	s.live = h
	s.mu.Unlock()

	stream, err := s.source.Acquire(func(frame []float32) {
		s.onFrame(h, frame)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		h.active = false
		s.live = nil
		s.logger.Warn("Не удалось захватить устройство записи", logger.Error(err))
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	// Сессию закрыли, пока устройство открывалось
	if !h.active {
		_ = stream.Release()
		return nil, ErrInvalidHandle
	}

	h.stream = stream
	h.rate = stream.SampleRate()

	s.logger.Debug("Запись начата",
		logger.Int64("recording", int64(h.id)),
		logger.Int("sample_rate", h.rate))

	return h, nil
}

// onFrame вызывается из потока устройства.
func (s *Session) onFrame(h *Handle, frame []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Кадры после сигнала остановки отбрасываются
	if !h.active {
		return
	}

	h.samples = append(h.samples, frame...)
	h.frames++
	s.level = rms(frame)
}

// Stop останавливает запись, освобождает устройство и возвращает WAV.
// Устройство освобождается до кодирования, даже если кодирование не удастся.
func (s *Session) Stop(h *Handle) ([]byte, error) {
	samples, rate, err := s.detach(h)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Запись остановлена",
		logger.Int64("recording", int64(h.id)),
		logger.Int("frames", h.frames),
		logger.Int("samples", len(samples)),
		logger.Duration("elapsed", time.Since(h.started)))

	clip, err := EncodeWAV(samples, rate)
	if err != nil {
		return nil, fmt.Errorf("кодирование записи: %w", err)
	}
	return clip, nil
}

// Abandon освобождает устройство без кодирования накопленных сэмплов.
func (s *Session) Abandon(h *Handle) error {
	_, _, err := s.detach(h)
	return err
}

// detach отключает приёмник кадров и освобождает устройство ровно один раз.
func (s *Session) detach(h *Handle) ([]float32, int, error) {
	s.mu.Lock()
	if h == nil || h != s.live || !h.active {
		s.mu.Unlock()
		return nil, 0, ErrInvalidHandle
	}

	h.active = false
	s.live = nil
	s.level = 0
	samples := h.samples
	h.samples = nil
	stream := h.stream
	rate := h.rate
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Release(); err != nil {
			s.logger.Warn("Ошибка освобождения устройства записи",
				logger.Int64("recording", int64(h.id)),
				logger.Error(err))
		}
	}

	return samples, rate, nil
}

// IsRecording возвращает true если идёт запись.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live != nil
}

// Level возвращает RMS последнего кадра (0 если запись не идёт).
func (s *Session) Level() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Close освобождает активную запись и сам источник.
func (s *Session) Close() error {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()

	if live != nil {
		_ = s.Abandon(live)
	}

	if c, ok := s.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func rms(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum / float64(len(frame))))
}
