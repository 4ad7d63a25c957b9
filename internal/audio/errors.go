package audio

import "errors"

var (
	// ErrDeviceUnavailable - нет устройства ввода или доступ к нему запрещён.
	ErrDeviceUnavailable = errors.New("устройство записи недоступно")
	// ErrDeviceBusy - устройство уже захвачено другой записью.
	ErrDeviceBusy = errors.New("устройство записи занято")
	// ErrInvalidHandle - запись уже остановлена или handle чужой.
	ErrInvalidHandle = errors.New("недействительный handle записи")
	// ErrEmptyBuffer - нечего кодировать.
	ErrEmptyBuffer = errors.New("пустой буфер сэмплов")
	// ErrUnsupportedFormat - формат ответа нельзя воспроизвести.
	ErrUnsupportedFormat = errors.New("неподдерживаемый формат аудио")
)
