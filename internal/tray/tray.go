// Package tray предоставляет системный трей с меню.
package tray

import (
	"github.com/getlantern/systray"

	"voicetutor/embedded"
	"voicetutor/internal/i18n"
	"voicetutor/internal/session"
)

// Callbacks содержит обработчики событий меню.
type Callbacks struct {
	OnNotificationsToggle func() bool
	OnReplyDialogToggle   func() bool
	OnQuit                func()
}

// Options - начальные значения переключателей меню.
type Options struct {
	Notifications bool
	ReplyDialog   bool
}

// Tray управляет иконкой в системном трее.
type Tray struct {
	callbacks Callbacks
	opts      Options
	notifyOn  *systray.MenuItem
	dialogOn  *systray.MenuItem
	status    *systray.MenuItem
	quitBtn   *systray.MenuItem
}

// New создаёт новый Tray.
func New(callbacks Callbacks, opts Options) *Tray {
	return &Tray{
		callbacks: callbacks,
		opts:      opts,
	}
}

// Run запускает системный трей. Блокирующая функция.
func (t *Tray) Run(onReady func()) {
	systray.Run(func() {
		t.onReady()
		if onReady != nil {
			onReady()
		}
	}, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(embedded.IconIdle)
	systray.SetTitle(i18n.T("app_name"))
	systray.SetTooltip(i18n.T("app_tooltip"))

	// Статус
	t.status = systray.AddMenuItem(i18n.T("tray_ready"), "")
	t.status.Disable()

	systray.AddSeparator()

	t.notifyOn = systray.AddMenuItemCheckbox(i18n.T("tray_notifications"), i18n.T("tray_notifications_hint"), t.opts.Notifications)
	t.dialogOn = systray.AddMenuItemCheckbox(i18n.T("tray_reply_dialog"), i18n.T("tray_reply_dialog_hint"), t.opts.ReplyDialog)

	systray.AddSeparator()

	// Выход
	t.quitBtn = systray.AddMenuItem(i18n.T("tray_quit"), i18n.T("tray_quit_hint"))

	// Обработка событий меню
	go t.handleMenuEvents()
}

func (t *Tray) handleMenuEvents() {
	for {
		select {
		case <-t.notifyOn.ClickedCh:
			toggle(t.notifyOn, t.callbacks.OnNotificationsToggle)

		case <-t.dialogOn.ClickedCh:
			toggle(t.dialogOn, t.callbacks.OnReplyDialogToggle)

		case <-t.quitBtn.ClickedCh:
			if t.callbacks.OnQuit != nil {
				t.callbacks.OnQuit()
			}
			systray.Quit()
			return
		}
	}
}

func toggle(item *systray.MenuItem, fn func() bool) {
	if fn == nil {
		return
	}
	if fn() {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// appearance возвращает иконку и ключ подписи для фазы.
func appearance(phase session.Phase) ([]byte, string) {
	switch phase {
	case session.PhaseRecording:
		return embedded.IconRecording, "tray_recording"
	case session.PhaseProcessing:
		return embedded.IconProcessing, "tray_processing"
	case session.PhaseReady:
		return embedded.IconReady, "tray_reply"
	case session.PhaseError:
		return embedded.IconError, "tray_error"
	default:
		return embedded.IconIdle, "tray_ready"
	}
}

// SetState обновляет иконку и статус по состоянию цикла.
func (t *Tray) SetState(st session.State) {
	icon, key := appearance(st.Phase)
	title := i18n.T(key)
	if st.Phase == session.PhaseError && st.Message != "" {
		title = st.Message
	}

	systray.SetIcon(icon)
	systray.SetTooltip(i18n.T("app_name") + " - " + title)
	if t.status != nil {
		t.status.SetTitle(title)
	}
}

func (t *Tray) onExit() {
	// Cleanup при выходе
}
