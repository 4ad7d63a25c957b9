// Voice Tutor - разговорный тренажёр в системном трее.
//
// Удерживайте горячую клавишу (по умолчанию Ctrl+Shift+Space) и говорите:
// запись отправляется модели, ответ показывается текстом и проигрывается голосом.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voicetutor/internal/app"
	"voicetutor/internal/audio"
	"voicetutor/internal/config"
	"voicetutor/internal/dialog"
	"voicetutor/internal/hotkey"
	"voicetutor/internal/i18n"
	"voicetutor/pkg/logger"
)

// Version устанавливается при сборке через -ldflags.
var Version = "dev"

var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "voicetutor",
		Short:         "Push-to-talk voice tutor",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			var runErr error
			// Запускаем в главном потоке (требование для macOS и некоторых GUI)
			hotkey.RunOnMainThread(func() {
				runErr = run(cfg, log)
			})
			return runErr
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.toml (default: next to the binary)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default: .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			return listDevices(cmd, cfg, log)
		},
	}
	rootCmd.AddCommand(devicesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(1)
	}
}

// setup загружает окружение, конфигурацию и создаёт журнал.
func setup() (*config.Config, *logger.Logger, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadEnv(files...); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	lc := cfg.Logging()
	if logLevel != "" {
		lc.Level = logLevel
	}
	log, err := logger.New(logger.Config{Level: lc.Level, Format: lc.Format})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("Voice Tutor запускается",
		logger.String("version", Version),
		logger.String("config", cfg.Path()))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("Ошибка инициализации", logger.Error(err))
		if !errors.Is(err, dialog.ErrCanceled) {
			dialog.ShowError(i18n.T("app_name"), err.Error())
		}
		return err
	}

	log.Info("Приложение запущено", logger.String("hotkey", cfg.Hotkey().String()))
	application.Run()
	return nil
}

func listDevices(cmd *cobra.Command, cfg *config.Config, log *logger.Logger) error {
	ac := cfg.Audio()
	source, err := audio.NewPortAudioSource(ac.SampleRate, ac.FramesPerBuffer, log)
	if err != nil {
		return err
	}
	defer source.Close()

	devices, err := source.InputDevices()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %-40s %-12s %2d ch  %.0f Hz\n", mark, d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}
