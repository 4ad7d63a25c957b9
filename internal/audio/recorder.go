package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voicetutor/pkg/logger"
)

const (
	// DefaultSampleRate - частота, которую запрашиваем у микрофона по умолчанию.
	DefaultSampleRate = 44100
	// DefaultFramesPerBuffer - размер кадра, доставляемого callback'ом.
	DefaultFramesPerBuffer = 4096
)

// DeviceInfo описывает устройство ввода.
type DeviceInfo struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// PortAudioSource захватывает устройство ввода по умолчанию через PortAudio.
type PortAudioSource struct {
	sampleRate      int
	framesPerBuffer int
	logger          *logger.Logger
	closeOnce       sync.Once
}

// NewPortAudioSource инициализирует PortAudio.
// sampleRate 0 означает частоту устройства по умолчанию.
func NewPortAudioSource(sampleRate, framesPerBuffer int, log *logger.Logger) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: инициализация PortAudio: %w", ErrDeviceUnavailable, err)
	}

	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}

	return &PortAudioSource{
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		logger:          log.Named("portaudio"),
	}, nil
}

// Acquire открывает поток устройства по умолчанию в режиме callback.
func (p *PortAudioSource) Acquire(onFrame FrameFunc) (Stream, error) {
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if dev == nil || dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: нет устройства ввода по умолчанию", ErrDeviceUnavailable)
	}

	rate := float64(p.sampleRate)
	if rate <= 0 {
		rate = dev.DefaultSampleRate
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = Channels
	params.SampleRate = rate
	params.FramesPerBuffer = p.framesPerBuffer

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		onFrame(in)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: открытие потока %q: %w", ErrDeviceUnavailable, dev.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: запуск потока %q: %w", ErrDeviceUnavailable, dev.Name, err)
	}

	p.logger.Debug("Устройство ввода захвачено",
		logger.String("device", dev.Name),
		logger.Float64("sample_rate", rate),
		logger.Int("frames_per_buffer", p.framesPerBuffer))

	return &portAudioStream{stream: stream, rate: int(rate)}, nil
}

// InputDevices возвращает список устройств ввода.
func (p *PortAudioSource) InputDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	def, _ := portaudio.DefaultInputDevice()

	result := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		info := DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         def != nil && d.Name == def.Name,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		result = append(result, info)
	}
	return result, nil
}

// Close завершает работу PortAudio.
func (p *PortAudioSource) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

type portAudioStream struct {
	stream *portaudio.Stream
	rate   int
}

func (s *portAudioStream) SampleRate() int {
	return s.rate
}

// Release дожидается завершения callback'а и закрывает поток.
func (s *portAudioStream) Release() error {
	return errors.Join(s.stream.Stop(), s.stream.Close())
}
