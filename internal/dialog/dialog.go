// Package dialog предоставляет системные диалоги: ответ тьютора и ввод ключа API.
package dialog

import (
	"errors"
	"strings"

	"github.com/ncruces/zenity"

	"voicetutor/internal/i18n"
)

// ErrCanceled - пользователь закрыл диалог.
var ErrCanceled = zenity.ErrCanceled

// AskAPIKey запрашивает ключ API. Ввод скрыт.
func AskAPIKey() (string, error) {
	key, err := zenity.Entry(
		i18n.T("dialog_api_key"),
		zenity.Title(i18n.T("dialog_api_key_title")),
		zenity.HideText(),
	)
	if err != nil {
		return "", err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New(i18n.T("error_api_key"))
	}
	return key, nil
}

// ShowReply показывает текст ответа тьютора.
func ShowReply(text string) error {
	err := zenity.Info(text, zenity.Title(i18n.T("dialog_reply_title")))
	if errors.Is(err, zenity.ErrCanceled) {
		return nil
	}
	return err
}

// ShowError показывает сообщение об ошибке.
func ShowError(title, message string) {
	_ = zenity.Error(message, zenity.Title(title))
}
