// Package config предоставляет конфигурацию приложения с сохранением в TOML-файл.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"voicetutor/internal/clip"
)

// FileName - имя файла конфигурации рядом с бинарником.
const FileName = "config.toml"

// Переменные окружения, перекрывающие файл.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
)

// Modifier представляет модификатор клавиши.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModShift Modifier = "shift"
	ModAlt   Modifier = "alt"
	ModSuper Modifier = "super" // Win/Cmd
)

// Key представляет клавишу.
type Key string

const (
	KeySpace  Key = "space"
	KeyReturn Key = "return"
	KeyTab    Key = "tab"
	KeyF1     Key = "f1"
	KeyF2     Key = "f2"
	KeyF3     Key = "f3"
	KeyF4     Key = "f4"
	KeyF5     Key = "f5"
	KeyF6     Key = "f6"
	KeyF7     Key = "f7"
	KeyF8     Key = "f8"
	KeyF9     Key = "f9"
	KeyF10    Key = "f10"
	KeyF11    Key = "f11"
	KeyF12    Key = "f12"
)

// Mode - режим жеста.
type Mode string

const (
	// ModeHold - удерживать клавишу во время речи.
	ModeHold Mode = "hold"
	// ModeToggle - первое нажатие начинает запись, второе останавливает.
	ModeToggle Mode = "toggle"
)

// Duration - time.Duration в виде строки ("60s", "500ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// HotkeyConfig хранит настройки горячей клавиши.
type HotkeyConfig struct {
	Modifiers []Modifier `toml:"modifiers"`
	Key       Key        `toml:"key"`
	Mode      Mode       `toml:"mode"`
}

// String возвращает строковое представление горячей клавиши.
func (h HotkeyConfig) String() string {
	parts := make([]string, 0, len(h.Modifiers)+1)
	for _, m := range h.Modifiers {
		parts = append(parts, string(m))
	}
	parts = append(parts, string(h.Key))
	return strings.Join(parts, "+")
}

// AudioConfig - параметры записи.
type AudioConfig struct {
	SampleRate      int      `toml:"sample_rate"`
	FramesPerBuffer int      `toml:"frames_per_buffer"`
	PlaybackRate    int      `toml:"playback_rate"`
	MinRecording    Duration `toml:"min_recording"`
}

// TutorConfig - параметры запроса к модели.
type TutorConfig struct {
	BaseURL      string   `toml:"base_url"`
	APIKey       string   `toml:"api_key,omitempty"`
	Model        string   `toml:"model"`
	Voice        string   `toml:"voice"`
	Prompt       string   `toml:"prompt"`
	Instructions string   `toml:"instructions,omitempty"`
	InputFormat  string   `toml:"input_format"`
	ReplyFormat  string   `toml:"reply_format"`
	Timeout      Duration `toml:"timeout"`
}

// UIConfig - настройки интерфейса.
type UIConfig struct {
	Language      string `toml:"language"`
	Notifications bool   `toml:"notifications"`
	ReplyDialog   bool   `toml:"reply_dialog"`
}

// APIConfig - локальный HTTP API.
type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// LoggingConfig - настройки журнала.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// configData структура для сериализации.
type configData struct {
	Audio   AudioConfig   `toml:"audio"`
	Tutor   TutorConfig   `toml:"tutor"`
	Hotkey  HotkeyConfig  `toml:"hotkey"`
	UI      UIConfig      `toml:"ui"`
	API     APIConfig     `toml:"api"`
	Logging LoggingConfig `toml:"logging"`
}

func defaults() configData {
	return configData{
		Audio: AudioConfig{
			SampleRate:      44100,
			FramesPerBuffer: 4096,
			PlaybackRate:    24000,
		},
		Tutor: TutorConfig{
			BaseURL:     "https://api.openai.com/v1/",
			Model:       "gpt-4o-audio-preview",
			Voice:       "alloy",
			Prompt:      "Please respond to this audio message",
			InputFormat: string(clip.FormatWAV),
			ReplyFormat: string(clip.FormatWAV),
			Timeout:     Duration{60 * time.Second},
		},
		Hotkey: HotkeyConfig{
			Modifiers: []Modifier{ModCtrl, ModShift},
			Key:       KeySpace,
			Mode:      ModeHold,
		},
		UI: UIConfig{
			Language:      "ru", // По умолчанию русский интерфейс
			Notifications: true,
			ReplyDialog:   true,
		},
		API: APIConfig{
			Address: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Config хранит настройки приложения.
type Config struct {
	mu         sync.RWMutex
	data       configData
	envAPIKey  string
	envBaseURL string
	configPath string
}

// DefaultPath возвращает путь к config.toml рядом с бинарником.
func DefaultPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	// Резолвим симлинки
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(execPath), FileName)
}

// LoadEnv загружает переменные из .env файлов. Отсутствие файла по умолчанию не ошибка.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("загрузка .env: %w", err)
	}
	return nil
}

// Load читает конфигурацию из файла (path пустой - рядом с бинарником).
// Отсутствующий файл означает настройки по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	c := &Config{
		data:       defaults(),
		configPath: path,
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, &c.data); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("чтение %s: %w", path, err)
		}
	}

	c.envAPIKey = os.Getenv(EnvAPIKey)
	c.envBaseURL = os.Getenv(EnvBaseURL)

	if err := c.data.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *configData) validate() error {
	var errs []error

	if d.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate: %d", d.Audio.SampleRate))
	}
	if d.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer: %d", d.Audio.FramesPerBuffer))
	}
	// Запись всегда кодируется в WAV
	if f, err := clip.ParseFormat(d.Tutor.InputFormat); err != nil {
		errs = append(errs, fmt.Errorf("tutor.input_format: %w", err))
	} else if f != clip.FormatWAV {
		errs = append(errs, fmt.Errorf("tutor.input_format: %q (поддерживается только wav)", d.Tutor.InputFormat))
	}
	if _, err := clip.ParseFormat(d.Tutor.ReplyFormat); err != nil {
		errs = append(errs, fmt.Errorf("tutor.reply_format: %w", err))
	}
	if d.Hotkey.Mode != ModeHold && d.Hotkey.Mode != ModeToggle {
		errs = append(errs, fmt.Errorf("hotkey.mode: %q (ожидается hold или toggle)", d.Hotkey.Mode))
	}
	if d.Hotkey.Key == "" {
		errs = append(errs, errors.New("hotkey.key не задан"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("некорректная конфигурация: %w", errors.Join(errs...))
	}
	return nil
}

// save сохраняет конфигурацию в файл. Вызывается под c.mu.
func (c *Config) save() error {
	if c.configPath == "" {
		return nil
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.data); err != nil {
		return fmt.Errorf("кодирование конфигурации: %w", err)
	}
	if err := os.WriteFile(c.configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("запись %s: %w", c.configPath, err)
	}
	return nil
}

// Path возвращает путь к файлу конфигурации.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configPath
}

// Audio возвращает параметры записи.
func (c *Config) Audio() AudioConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Audio
}

// Tutor возвращает параметры запроса с учётом переменных окружения.
func (c *Config) Tutor() TutorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := c.data.Tutor
	if c.envAPIKey != "" {
		t.APIKey = c.envAPIKey
	}
	if c.envBaseURL != "" {
		t.BaseURL = c.envBaseURL
	}
	return t
}

// SetAPIKey сохраняет ключ API в файл.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Tutor.APIKey = key
	return c.save()
}

// Hotkey возвращает текущую горячую клавишу.
func (c *Config) Hotkey() HotkeyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Hotkey
}

// UI возвращает настройки интерфейса.
func (c *Config) UI() UIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.UI
}

// ToggleNotifications переключает состояние уведомлений.
func (c *Config) ToggleNotifications() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.UI.Notifications = !c.data.UI.Notifications
	return c.data.UI.Notifications, c.save()
}

// ToggleReplyDialog переключает показ окна с ответом.
func (c *Config) ToggleReplyDialog() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.UI.ReplyDialog = !c.data.UI.ReplyDialog
	return c.data.UI.ReplyDialog, c.save()
}

// API возвращает настройки локального API.
func (c *Config) API() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.API
}

// Logging возвращает настройки журнала.
func (c *Config) Logging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Logging
}

// AvailableModifiers возвращает список доступных модификаторов.
func AvailableModifiers() []Modifier {
	return []Modifier{ModCtrl, ModShift, ModAlt, ModSuper}
}
