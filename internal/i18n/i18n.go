// Package i18n provides internationalization support.
package i18n

import "sync"

// Language represents a UI language.
type Language string

const (
	RU Language = "ru"
	EN Language = "en"
)

var (
	mu      sync.RWMutex
	current = RU // Default language
)

// Translations for all supported languages.
var translations = map[Language]map[string]string{
	RU: {
		// App
		"app_name":    "Voice Tutor",
		"app_tooltip": "Voice Tutor - разговорный тренажёр",

		// Tray menu
		"tray_ready":              "Готов к работе",
		"tray_recording":          "Запись...",
		"tray_processing":         "Тьютор думает...",
		"tray_reply":              "Ответ получен",
		"tray_error":              "Ошибка",
		"tray_notifications":      "Уведомления",
		"tray_notifications_hint": "Показывать уведомления",
		"tray_reply_dialog":       "Окно с ответом",
		"tray_reply_dialog_hint":  "Показывать текст ответа в отдельном окне",
		"tray_quit":               "Выход",
		"tray_quit_hint":          "Закрыть приложение",

		// Notifications
		"notify_recording":       "Запись...",
		"notify_recording_hint":  "Говорите в микрофон",
		"notify_processing":      "Отправляю...",
		"notify_processing_hint": "Тьютор готовит ответ",
		"notify_reply":           "Тьютор",
		"notify_error":           "Ошибка",
		"notify_ready":           "Voice Tutor готов к работе",

		// Dialogs
		"dialog_reply_title":   "Ответ тьютора",
		"dialog_api_key_title": "Ключ API",
		"dialog_api_key":       "Введите ключ API OpenAI:",

		// Errors
		"error_device_unavailable": "Микрофон недоступен. Проверьте подключение и разрешения.",
		"error_device_busy":        "Микрофон уже используется.",
		"error_invalid_handle":     "Запись уже остановлена.",
		"error_empty_recording":    "Запись пустая. Удерживайте клавишу, пока говорите.",
		"error_too_short":          "Запись слишком короткая.",
		"error_malformed_payload":  "Не удалось разобрать аудио.",
		"error_timeout":            "Тьютор не ответил вовремя. Попробуйте ещё раз.",
		"error_transport":          "Нет соединения с сервисом. Проверьте сеть.",
		"error_endpoint":           "Сервис вернул ошибку. Попробуйте ещё раз.",
		"error_unknown":            "Что-то пошло не так. Попробуйте ещё раз.",
		"error_hotkey_register":    "Не удалось зарегистрировать горячую клавишу",
		"error_api_key":            "Не задан ключ API",
	},

	EN: {
		// App
		"app_name":    "Voice Tutor",
		"app_tooltip": "Voice Tutor - speaking practice",

		// Tray menu
		"tray_ready":              "Ready",
		"tray_recording":          "Recording...",
		"tray_processing":         "Tutor is thinking...",
		"tray_reply":              "Reply received",
		"tray_error":              "Error",
		"tray_notifications":      "Notifications",
		"tray_notifications_hint": "Show notifications",
		"tray_reply_dialog":       "Reply window",
		"tray_reply_dialog_hint":  "Show reply text in a window",
		"tray_quit":               "Quit",
		"tray_quit_hint":          "Close application",

		// Notifications
		"notify_recording":       "Recording...",
		"notify_recording_hint":  "Speak into the microphone",
		"notify_processing":      "Sending...",
		"notify_processing_hint": "The tutor is preparing a reply",
		"notify_reply":           "Tutor",
		"notify_error":           "Error",
		"notify_ready":           "Voice Tutor is ready",

		// Dialogs
		"dialog_reply_title":   "Tutor reply",
		"dialog_api_key_title": "API key",
		"dialog_api_key":       "Enter your OpenAI API key:",

		// Errors
		"error_device_unavailable": "Microphone unavailable. Check the connection and permissions.",
		"error_device_busy":        "Microphone is already in use.",
		"error_invalid_handle":     "Recording already stopped.",
		"error_empty_recording":    "Nothing was recorded. Hold the key while you speak.",
		"error_too_short":          "Recording is too short.",
		"error_malformed_payload":  "Could not read the audio.",
		"error_timeout":            "The tutor did not answer in time. Please try again.",
		"error_transport":          "Cannot reach the service. Check your network.",
		"error_endpoint":           "The service returned an error. Please try again.",
		"error_unknown":            "Something went wrong. Please try again.",
		"error_hotkey_register":    "Could not register hotkey",
		"error_api_key":            "API key is not set",
	},
}

// T returns the translation for the given key.
func T(key string) string {
	mu.RLock()
	defer mu.RUnlock()

	if strings, ok := translations[current]; ok {
		if s, ok := strings[key]; ok {
			return s
		}
	}
	// Fallback to key itself
	return key
}

// SetLanguage sets the current UI language. Unknown languages are ignored.
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := translations[lang]; ok {
		current = lang
	}
}

// GetLanguage returns the current UI language.
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// AvailableLanguages returns list of supported languages.
func AvailableLanguages() []Language {
	return []Language{RU, EN}
}
