package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// HeaderSize - размер канонического заголовка WAV.
	HeaderSize = 44
	// BitsPerSample - разрядность выходного PCM.
	BitsPerSample = 16
	// Channels - количество каналов (mono).
	Channels = 1

	bytesPerSample = BitsPerSample / 8
)

// WAVInfo - поля заголовка WAV.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataLength    int // байт в чанке data
	FileLength    int // поле RIFF: размер файла минус 8
}

// Samples возвращает количество сэмплов в чанке data.
func (i WAVInfo) Samples() int {
	if i.BitsPerSample == 0 || i.Channels == 0 {
		return 0
	}
	return i.DataLength / (i.BitsPerSample / 8) / i.Channels
}

// Duration возвращает длительность записи.
func (i WAVInfo) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Samples()) * time.Second / time.Duration(i.SampleRate)
}

// Quantize переводит float-сэмпл в int16.
// Положительные значения масштабируются на 32767, отрицательные на 32768,
// результат обрезается до диапазона int16.
func Quantize(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 0:
		q := math.Round(v * math.MaxInt16)
		if q > math.MaxInt16 {
			return math.MaxInt16
		}
		return int16(q)
	default:
		q := math.Round(v * -math.MinInt16)
		if q < math.MinInt16 {
			return math.MinInt16
		}
		return int16(q)
	}
}

// EncodeWAV кодирует mono float-сэмплы в WAV 16 бит.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyBuffer
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: частота дискретизации %d", ErrEmptyBuffer, sampleRate)
	}

	dataLen := len(samples) * bytesPerSample
	buf := make([]byte, HeaderSize+dataLen)

	// RIFF
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	// fmt
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*Channels*bytesPerSample))
	binary.LittleEndian.PutUint16(buf[32:34], Channels*bytesPerSample)
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	// data
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	off := HeaderSize
	for _, s := range samples {
		binary.LittleEndian.PutUint16(buf[off:], uint16(Quantize(s)))
		off += bytesPerSample
	}

	return buf, nil
}

// ParseWAV читает канонический 44-байтный заголовок WAV.
func ParseWAV(data []byte) (WAVInfo, error) {
	if len(data) < HeaderSize {
		return WAVInfo{}, fmt.Errorf("WAV слишком короткий: %d байт", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("нет заголовка RIFF/WAVE")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return WAVInfo{}, fmt.Errorf("неканонический WAV: нет чанков fmt/data на своих местах")
	}

	return WAVInfo{
		FileLength:    int(binary.LittleEndian.Uint32(data[4:8])),
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
		DataLength:    int(binary.LittleEndian.Uint32(data[40:44])),
	}, nil
}
