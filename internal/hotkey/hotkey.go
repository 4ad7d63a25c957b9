// Package hotkey превращает глобальную горячую клавишу в жесты записи.
package hotkey

import (
	"sync"
	"time"

	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"

	"voicetutor/internal/config"
	"voicetutor/pkg/logger"
)

const (
	// debounceInterval - защита от автоповтора клавиши.
	debounceInterval = 300 * time.Millisecond
	// releaseGrace - окно, в котором keyup+keydown автоповтора X11 не
	// считаются отпусканием клавиши.
	releaseGrace = 100 * time.Millisecond
)

// Gestures - получатель жестов (session.Controller).
type Gestures interface {
	StartGesture()
	StopGesture()
	Toggle()
}

type event int

const (
	keyDown event = iota
	keyUp
)

// dispatcher переводит нажатия в жесты с учётом режима.
type dispatcher struct {
	target     Gestures
	mode       config.Mode
	lastDown   time.Time
	pressed    bool
	releasedAt time.Time // отложенный keyup в режиме удержания
}

func (d *dispatcher) handle(ev event, now time.Time) {
	d.expire(now)

	switch ev {
	case keyDown:
		// Автоповтор X11 присылает пару keyup+keydown: удержание продолжается
		if !d.releasedAt.IsZero() {
			d.releasedAt = time.Time{}
			d.pressed = true
			return
		}
		// Повторный keydown от автоповтора
		if d.pressed || now.Sub(d.lastDown) < debounceInterval {
			return
		}
		d.lastDown = now
		d.pressed = true

		if d.mode == config.ModeToggle {
			d.target.Toggle()
			return
		}
		d.target.StartGesture()

	case keyUp:
		if !d.pressed {
			return
		}
		d.pressed = false

		if d.mode == config.ModeHold {
			d.releasedAt = now
		}
	}
}

// expire останавливает запись, если за releaseGrace после keyup не пришёл keydown.
func (d *dispatcher) expire(now time.Time) {
	if d.releasedAt.IsZero() || now.Sub(d.releasedAt) < releaseGrace {
		return
	}
	d.releasedAt = time.Time{}
	d.target.StopGesture()
}

// deadline возвращает момент срабатывания отложенного keyup.
func (d *dispatcher) deadline() (time.Time, bool) {
	if d.releasedAt.IsZero() {
		return time.Time{}, false
	}
	return d.releasedAt.Add(releaseGrace), true
}

// Handler слушает горячую клавишу.
type Handler struct {
	mu     sync.Mutex
	hk     *hotkey.Hotkey
	target Gestures
	stopCh chan struct{}
	logger *logger.Logger
}

// New создаёт обработчик горячей клавиши.
func New(target Gestures, log *logger.Logger) *Handler {
	return &Handler{
		target: target,
		logger: log.Named("hotkey"),
	}
}

// Register регистрирует горячую клавишу, заменяя предыдущую.
func (h *Handler) Register(cfg config.HotkeyConfig) error {
	h.logger.Info("Регистрация горячей клавиши",
		logger.String("hotkey", cfg.String()),
		logger.String("mode", string(cfg.Mode)))

	if err := h.Unregister(); err != nil {
		h.logger.Warn("Ошибка отмены предыдущей горячей клавиши", logger.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Конвертируем модификаторы
	mods := make([]hotkey.Modifier, 0, len(cfg.Modifiers))
	for _, m := range cfg.Modifiers {
		if mod, ok := modifierMap[m]; ok {
			mods = append(mods, mod)
		}
	}

	key, ok := keyMap[cfg.Key]
	if !ok {
		h.logger.Warn("Неизвестная клавиша, используется space", logger.String("key", string(cfg.Key)))
		key = hotkey.KeySpace
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return err
	}

	h.hk = hk
	h.stopCh = make(chan struct{})

	d := &dispatcher{target: h.target, mode: cfg.Mode}
	go h.listen(hk, d, h.stopCh)
	return nil
}

func (h *Handler) listen(hk *hotkey.Hotkey, d *dispatcher, stopCh chan struct{}) {
	timer := time.NewTimer(releaseGrace)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			d.handle(keyDown, time.Now())
		case _, ok := <-hk.Keyup():
			if !ok {
				return
			}
			d.handle(keyUp, time.Now())
		case now := <-timer.C:
			d.expire(now)
		}

		if at, ok := d.deadline(); ok {
			timer.Reset(time.Until(at))
		}
	}
}

// Unregister отменяет регистрацию горячей клавиши.
func (h *Handler) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}

	if h.hk != nil {
		err := h.hk.Unregister()
		h.hk = nil
		return err
	}
	return nil
}

// RunOnMainThread запускает функцию в главном потоке (требование для macOS).
func RunOnMainThread(fn func()) {
	mainthread.Init(fn)
}

// keyMap маппинг config.Key -> hotkey.Key
var keyMap = map[config.Key]hotkey.Key{
	config.KeySpace:  hotkey.KeySpace,
	config.KeyReturn: hotkey.KeyReturn,
	config.KeyTab:    hotkey.KeyTab,
	config.KeyF1:     hotkey.KeyF1,
	config.KeyF2:     hotkey.KeyF2,
	config.KeyF3:     hotkey.KeyF3,
	config.KeyF4:     hotkey.KeyF4,
	config.KeyF5:     hotkey.KeyF5,
	config.KeyF6:     hotkey.KeyF6,
	config.KeyF7:     hotkey.KeyF7,
	config.KeyF8:     hotkey.KeyF8,
	config.KeyF9:     hotkey.KeyF9,
	config.KeyF10:    hotkey.KeyF10,
	config.KeyF11:    hotkey.KeyF11,
	config.KeyF12:    hotkey.KeyF12,
}
