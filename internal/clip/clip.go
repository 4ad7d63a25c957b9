// Package clip переводит аудиоклипы в текстовое представление для запроса и обратно.
package clip

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload - строка не является корректным base64.
var ErrMalformedPayload = errors.New("некорректные данные аудио")

// Format - формат аудиоклипа.
type Format string

const (
	FormatWAV   Format = "wav"
	FormatMP3   Format = "mp3"
	FormatFLAC  Format = "flac"
	FormatOpus  Format = "opus"
	FormatPCM16 Format = "pcm16"
)

var mimeTypes = map[Format]string{
	FormatWAV:   "audio/wav",
	FormatMP3:   "audio/mpeg",
	FormatFLAC:  "audio/flac",
	FormatOpus:  "audio/ogg",
	FormatPCM16: "audio/L16",
}

// ParseFormat разбирает название формата. Пустая строка означает wav.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatWAV, nil
	}
	if _, ok := mimeTypes[f]; !ok {
		return "", fmt.Errorf("неизвестный формат аудио: %q", s)
	}
	return f, nil
}

// MIMEType возвращает MIME-тип формата.
func (f Format) MIMEType() string {
	if m, ok := mimeTypes[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// ToTransport кодирует клип в base64 (со стандартным выравниванием).
func ToTransport(clip []byte) string {
	return base64.StdEncoding.EncodeToString(clip)
}

// FromTransport декодирует base64 обратно в байты.
// Допускает префикс data URL ("data:audio/wav;base64,").
func FromTransport(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 || !strings.HasSuffix(payload[:i], ";base64") {
			return nil, fmt.Errorf("%w: data URL без base64", ErrMalformedPayload)
		}
		payload = payload[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return data, nil
}

// DataURL оборачивает клип в data URL.
func DataURL(clip []byte, f Format) string {
	return "data:" + f.MIMEType() + ";base64," + ToTransport(clip)
}
