package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"voicetutor/internal/clip"
	"voicetutor/pkg/logger"
)

const (
	// DefaultPlaybackRate - частота вывода (OpenAI отдаёт речь в 24 кГц).
	DefaultPlaybackRate = 24000

	playLatency     = 100 * time.Millisecond
	resampleQuality = 4
)

// Player воспроизводит синтезированные ответы.
type Player struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	ready  bool
	logger *logger.Logger
}

// NewPlayer создаёт плеер. Устройство вывода открывается при первом Play.
func NewPlayer(sampleRate int, log *logger.Logger) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultPlaybackRate
	}
	return &Player{
		rate:   beep.SampleRate(sampleRate),
		logger: log.Named("player"),
	}
}

// Play декодирует ответ и ставит его в очередь воспроизведения. Не блокирует.
func (p *Player) Play(data []byte, format clip.Format) error {
	streamer, f, err := decode(data, format)
	if err != nil {
		return err
	}

	if err := p.init(); err != nil {
		streamer.Close()
		return err
	}

	var s beep.Streamer = streamer
	if f.SampleRate != p.rate {
		s = beep.Resample(resampleQuality, f.SampleRate, p.rate, streamer)
	}

	speaker.Play(beep.Seq(s, beep.Callback(func() {
		streamer.Close()
	})))

	p.logger.Debug("Воспроизведение ответа",
		logger.String("format", string(format)),
		logger.Int("bytes", len(data)),
		logger.Int("sample_rate", int(f.SampleRate)))

	return nil
}

// init открывает устройство вывода. После неудачи повторяет попытку при следующем Play.
func (p *Player) init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}
	if err := speaker.Init(p.rate, p.rate.N(playLatency)); err != nil {
		return fmt.Errorf("инициализация вывода звука: %w", err)
	}
	p.ready = true
	return nil
}

// Close останавливает воспроизведение и закрывает устройство вывода.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return
	}
	speaker.Clear()
	speaker.Close()
	p.ready = false
}

// decode выбирает декодер по формату ответа.
func decode(data []byte, format clip.Format) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) == 0 {
		return nil, beep.Format{}, ErrEmptyBuffer
	}

	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)

	switch format {
	case clip.FormatWAV:
		s, f, err = wav.Decode(bytes.NewReader(data))
	case clip.FormatMP3:
		s, f, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case clip.FormatFLAC:
		s, f, err = flac.Decode(bytes.NewReader(data))
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("декодирование %s: %w", format, err)
	}
	return s, f, nil
}
