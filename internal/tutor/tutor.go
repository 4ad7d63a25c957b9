// Package tutor отправляет записанную реплику мультимодальной модели
// и возвращает её ответ текстом и речью.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"voicetutor/internal/clip"
	"voicetutor/pkg/logger"
)

const (
	DefaultModel   = "gpt-4o-audio-preview"
	DefaultVoice   = "alloy"
	DefaultPrompt  = "Please respond to this audio message"
	DefaultTimeout = 60 * time.Second

	// NoResponseText - текст ответа, если модель не вернула ни текста, ни транскрипта.
	NoResponseText = "No response received"
)

var (
	// ErrTimeout - ответ не получен за отведённое время.
	ErrTimeout = errors.New("превышено время ожидания ответа")
	// ErrTransport - сетевая ошибка.
	ErrTransport = errors.New("ошибка соединения")
	// ErrEndpoint - сервис вернул ошибку или ответ неверной структуры.
	ErrEndpoint = errors.New("ошибка сервиса")
)

// Completer - сервис chat completions (openai.ChatCompletionService).
type Completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Config - настройки запроса.
type Config struct {
	Model        string
	Voice        string
	Prompt       string
	Instructions string // системное сообщение, необязательно
	InputFormat  clip.Format
	ReplyFormat  clip.Format
	Timeout      time.Duration
}

// Reply - нормализованный ответ.
type Reply struct {
	Text        string
	Transcript  string
	Audio       []byte // nil если речь не вернулась
	AudioFormat clip.Format
}

// HasAudio возвращает true если в ответе есть синтезированная речь.
func (r Reply) HasAudio() bool {
	return len(r.Audio) > 0
}

// Client выполняет один запрос-ответ к модели.
type Client struct {
	completions Completer
	config      Config
	logger      *logger.Logger
}

// New создаёт клиента поверх общего сервиса completions.
func New(completions Completer, cfg Config, log *logger.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = clip.FormatWAV
	}
	if cfg.ReplyFormat == "" {
		cfg.ReplyFormat = clip.FormatWAV
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		completions: completions,
		config:      cfg,
		logger:      log.Named("tutor"),
	}
}

// Config возвращает действующие настройки.
func (c *Client) Config() Config {
	return c.config
}

// Submit отправляет закодированный клип и ждёт ответа.
// Повторов нет: решение о повторе принимает вызывающий.
func (c *Client) Submit(ctx context.Context, payload string) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	c.logger.Info("Отправка реплики",
		logger.String("model", c.config.Model),
		logger.Int("payload_bytes", len(payload)))

	resp, err := c.completions.New(ctx, c.params(payload), option.WithMaxRetries(0))
	if err != nil {
		err = classify(ctx, err)
		c.logger.Warn("Запрос к модели не удался",
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return Reply{}, err
	}

	reply, err := c.normalize(resp)
	if err != nil {
		c.logger.Warn("Некорректный ответ модели", logger.Error(err))
		return Reply{}, err
	}

	c.logger.Info("Ответ получен",
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("text_len", len(reply.Text)),
		logger.Int("audio_bytes", len(reply.Audio)))

	return reply, nil
}

func (c *Client) params(payload string) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if c.config.Instructions != "" {
		messages = append(messages, openai.SystemMessage(c.config.Instructions))
	}
	messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(c.config.Prompt),
		openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   payload,
			Format: string(c.config.InputFormat),
		}),
	}))

	return openai.ChatCompletionNewParams{
		Model:      openai.ChatModel(c.config.Model),
		Modalities: []string{"text", "audio"},
		Audio: openai.ChatCompletionAudioParam{
			Voice:  openai.ChatCompletionAudioParamVoice(c.config.Voice),
			Format: openai.ChatCompletionAudioParamFormat(c.config.ReplyFormat),
		},
		Messages: messages,
	}
}

// normalize: текст ответа, иначе транскрипт речи, иначе NoResponseText.
func (c *Client) normalize(resp *openai.ChatCompletion) (Reply, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: в ответе нет вариантов", ErrEndpoint)
	}

	msg := resp.Choices[0].Message
	reply := Reply{
		Text:       msg.Content,
		Transcript: msg.Audio.Transcript,
	}

	switch {
	case reply.Text != "":
	case reply.Transcript != "":
		reply.Text = reply.Transcript
	default:
		reply.Text = NoResponseText
	}

	if msg.Audio.Data != "" {
		audio, err := clip.FromTransport(msg.Audio.Data)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: аудио ответа: %w", ErrEndpoint, err)
		}
		reply.Audio = audio
		reply.AudioFormat = c.config.ReplyFormat
	}

	return reply, nil
}

// classify относит ошибку к одному из классов ErrTimeout, ErrTransport, ErrEndpoint.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: HTTP %d: %w", ErrEndpoint, apiErr.StatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	// Остальное - ответ, который SDK не смог разобрать
	return fmt.Errorf("%w: %w", ErrEndpoint, err)
}
