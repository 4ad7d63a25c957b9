// Package embedded содержит иконки трея.
package embedded

import (
	_ "embed"
)

//go:generate go run ../scripts/generate_icons.go .

// IconIdle - ожидание (серая).
//
//go:embed icon_idle.png
var IconIdle []byte

// IconRecording - идёт запись (красная).
//
//go:embed icon_recording.png
var IconRecording []byte

// IconProcessing - ожидание ответа тьютора (оранжевая).
//
//go:embed icon_processing.png
var IconProcessing []byte

// IconReady - ответ получен (зелёная).
//
//go:embed icon_ready.png
var IconReady []byte

// IconError - цикл завершился ошибкой.
//
//go:embed icon_error.png
var IconError []byte
