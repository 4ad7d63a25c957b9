// Package notify показывает системные уведомления о смене фаз цикла.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"voicetutor/internal/i18n"
	"voicetutor/internal/session"
	"voicetutor/pkg/logger"
)

const maxMessageRunes = 100

// Notifier отправляет системные уведомления.
type Notifier struct {
	mu      sync.Mutex
	enabled bool
	send    func(title, message, icon string) error
	logger  *logger.Logger
}

// New создаёт новый Notifier.
func New(enabled bool, log *logger.Logger) *Notifier {
	return &Notifier{
		enabled: enabled,
		send:    beeep.Notify,
		logger:  log.Named("notify"),
	}
}

// SetEnabled включает/выключает уведомления.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Show показывает уведомление для нового состояния.
func (n *Notifier) Show(st session.State) {
	switch st.Phase {
	case session.PhaseRecording:
		n.notify(i18n.T("notify_recording"), i18n.T("notify_recording_hint"))
	case session.PhaseProcessing:
		n.notify(i18n.T("notify_processing"), i18n.T("notify_processing_hint"))
	case session.PhaseReady:
		if st.Reply != nil {
			n.notify(i18n.T("notify_reply"), st.Reply.Text)
		}
	case session.PhaseError:
		n.Error(st.Message)
	}
}

// Error показывает уведомление об ошибке.
func (n *Notifier) Error(msg string) {
	n.notify(i18n.T("notify_error"), msg)
}

// Info показывает информационное уведомление.
func (n *Notifier) Info(msg string) {
	n.notify("", msg)
}

func (n *Notifier) notify(title, message string) {
	n.mu.Lock()
	enabled := n.enabled
	n.mu.Unlock()

	if !enabled {
		return
	}

	appName := i18n.T("app_name")
	if title != "" {
		title = appName + ": " + title
	} else {
		title = appName
	}

	// Ошибки уведомлений не критичны
	if err := n.send(title, truncate(message, maxMessageRunes), ""); err != nil {
		n.logger.Debug("Уведомление не показано", logger.Error(err))
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
