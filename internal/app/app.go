// Package app связывает компоненты приложения.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"voicetutor/internal/api"
	"voicetutor/internal/audio"
	"voicetutor/internal/clip"
	"voicetutor/internal/config"
	"voicetutor/internal/dialog"
	"voicetutor/internal/hotkey"
	"voicetutor/internal/i18n"
	"voicetutor/internal/metrics"
	"voicetutor/internal/notify"
	"voicetutor/internal/session"
	"voicetutor/internal/tray"
	"voicetutor/internal/tutor"
	"voicetutor/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// App представляет главное приложение.
type App struct {
	mu          sync.Mutex
	config      *config.Config
	logger      *logger.Logger
	capture     *audio.Session
	player      *audio.Player
	controller  *session.Controller
	notifier    *notify.Notifier
	tray        *tray.Tray
	hotkey      *hotkey.Handler
	api         *api.Server
	replyDialog bool
	closed      bool
}

// New создаёт приложение по конфигурации.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	ui := cfg.UI()
	i18n.SetLanguage(i18n.Language(ui.Language))

	tutorClient, err := newTutor(cfg, log)
	if err != nil {
		return nil, err
	}

	ac := cfg.Audio()
	source, err := audio.NewPortAudioSource(ac.SampleRate, ac.FramesPerBuffer, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	capture := audio.NewSession(source, log)
	player := audio.NewPlayer(ac.PlaybackRate, log)

	controller := session.New(capture, tutorClient, player, session.Options{
		MinRecording: ac.MinRecording.Duration,
		Metrics:      m,
		Logger:       log,
	})

	app := &App{
		config:      cfg,
		logger:      log.Named("app"),
		capture:     capture,
		player:      player,
		controller:  controller,
		notifier:    notify.New(ui.Notifications, log),
		hotkey:      hotkey.New(controller, log),
		replyDialog: ui.ReplyDialog,
	}

	if apiCfg := cfg.API(); apiCfg.Enabled {
		app.api = api.NewServer(controller, m, log)
	}

	// Создаём системный трей с обработчиками
	app.tray = tray.New(tray.Callbacks{
		OnNotificationsToggle: func() bool {
			enabled, err := app.config.ToggleNotifications()
			if err != nil {
				app.logger.Warn("Не удалось сохранить настройки", logger.Error(err))
			}
			app.notifier.SetEnabled(enabled)
			return enabled
		},
		OnReplyDialogToggle: func() bool {
			enabled, err := app.config.ToggleReplyDialog()
			if err != nil {
				app.logger.Warn("Не удалось сохранить настройки", logger.Error(err))
			}
			app.mu.Lock()
			app.replyDialog = enabled
			app.mu.Unlock()
			return enabled
		},
		OnQuit: func() {
			app.Close()
		},
	}, tray.Options{
		Notifications: ui.Notifications,
		ReplyDialog:   ui.ReplyDialog,
	})

	return app, nil
}

// newTutor создаёт клиента модели. Если ключ не задан, спрашивает его у пользователя.
func newTutor(cfg *config.Config, log *logger.Logger) (*tutor.Client, error) {
	tc := cfg.Tutor()

	if tc.APIKey == "" {
		key, err := dialog.AskAPIKey()
		if err != nil {
			return nil, errors.Join(errors.New(i18n.T("error_api_key")), err)
		}
		if err := cfg.SetAPIKey(key); err != nil {
			log.Warn("Не удалось сохранить ключ API", logger.Error(err))
		}
		tc.APIKey = key
	}

	opts := []option.RequestOption{option.WithAPIKey(tc.APIKey)}
	if tc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(tc.BaseURL))
	}
	client := openai.NewClient(opts...)

	// Форматы уже проверены при загрузке конфигурации
	inputFormat, _ := clip.ParseFormat(tc.InputFormat)
	replyFormat, _ := clip.ParseFormat(tc.ReplyFormat)

	return tutor.New(&client.Chat.Completions, tutor.Config{
		Model:        tc.Model,
		Voice:        tc.Voice,
		Prompt:       tc.Prompt,
		Instructions: tc.Instructions,
		InputFormat:  inputFormat,
		ReplyFormat:  replyFormat,
		Timeout:      tc.Timeout.Duration,
	}, log), nil
}

// Run запускает приложение. Блокирует до выхода из трея.
func (a *App) Run() {
	a.tray.Run(func() {
		// Регистрируем горячую клавишу после инициализации трея
		hk := a.config.Hotkey()
		if err := a.hotkey.Register(hk); err != nil {
			a.logger.Error("Ошибка регистрации горячей клавиши",
				logger.String("hotkey", hk.String()),
				logger.Error(err))
			a.notifier.Error(i18n.T("error_hotkey_register") + ": " + hk.String())
		}

		if a.api != nil {
			if _, err := a.api.Start(a.config.API().Address); err != nil {
				a.logger.Error("Не удалось запустить локальный API", logger.Error(err))
			}
		}

		updates, _ := a.controller.Subscribe(8)
		go a.watch(updates)

		a.notifier.Info(i18n.T("notify_ready"))
	})
}

// watch отражает состояние цикла в трее, уведомлениях и окне ответа.
func (a *App) watch(updates <-chan session.State) {
	for st := range updates {
		a.tray.SetState(st)
		a.notifier.Show(st)

		if st.Phase != session.PhaseReady || st.Reply == nil {
			continue
		}

		a.mu.Lock()
		show := a.replyDialog
		a.mu.Unlock()

		if show {
			text := st.Reply.Text
			go func() {
				if err := dialog.ShowReply(text); err != nil {
					a.logger.Debug("Окно ответа не показано", logger.Error(err))
				}
			}()
		}
	}
}

// Close освобождает ресурсы приложения.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	if err := a.hotkey.Unregister(); err != nil {
		a.logger.Warn("Ошибка отмены горячей клавиши", logger.Error(err))
	}

	if a.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.api.Shutdown(ctx); err != nil {
			a.logger.Warn("Ошибка остановки API", logger.Error(err))
		}
		cancel()
	}

	// Дожидается текущего запроса и закрывает подписки
	a.controller.Close()

	a.player.Close()
	if err := a.capture.Close(); err != nil {
		a.logger.Warn("Ошибка закрытия устройства записи", logger.Error(err))
	}

	a.logger.Info("Приложение остановлено")
}
